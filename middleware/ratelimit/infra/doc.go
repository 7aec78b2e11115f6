// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: janelas deslizantes em memória, com lock por identidade e janitor
//   - RedisStore: janelas deslizantes em sorted sets, atômicas via script Lua
//   - MemoryStatsStore / RedisStatsStore / PrometheusStatsStore: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
