// Package domain define contratos e tipos de domínio do rate limit por janelas deslizantes
// e do limite de concorrência.
//
// Aqui ficam a identidade do cliente (Key), as janelas (sustentada e rajada), o orçamento
// devolvido ao cliente (Budget) e os erros de negócio. Não há dependência de net/http nem
// de implementações concretas de armazenamento.
package domain
