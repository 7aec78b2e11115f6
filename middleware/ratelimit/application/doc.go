// Package application contém os casos de uso do rate limit e do limite de concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Admit(ctx, key) devolve um Budget ou um *domain.RateLimitError, aplicando a
// política de fail-open quando o store falha.
package application
