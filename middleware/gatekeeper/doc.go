// Package gatekeeper monta a cadeia de admissão que fica na frente do motor de diálogo.
//
// Ordem (para na primeira rejeição):
//
//   1) headers de segurança + X-Request-ID (todas as respostas)
//   2) rota isenta (/health, /status, /metrics)? segue direto
//   3) limite de concorrência (opcional, 503)
//   4) validação do corpo (400)
//   5) identidade: client_<id> com token válido, senão ip_<origem>
//   6) rate limit por janelas deslizantes (429 + Retry-After)
//   7) rota protegida? exige token válido (401)
//   8) handler
//
// Headers X-RateLimit-* são gravados antes do handler, então aparecem também em 401.
package gatekeeper
