// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (admissão por janelas deslizantes, acquire/timeout) sem net/http
//   - infra: implementações concretas (Redis + Lua, memória, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gatekeeper:
//
//   1) Lê a identidade (client_<id> ou ip_<origem>)
//   2) Chama a camada application para admitir ou rejeitar
//   3) Se bloqueado, responde 429 com Retry-After (rate limit) ou 503 (concorrência)
//   4) Se permitido, anexa X-RateLimit-* e chama o próximo handler
//
// Falha do store não bloqueia ninguém: a requisição segue (fail-open) e o evento é logado.
package ratelimit
