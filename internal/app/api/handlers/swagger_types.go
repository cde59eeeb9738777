package handlers

import (
	"github.com/pixmuse/billing/internal/app/service/statistics"
	"github.com/pixmuse/billing/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespCredits wraps CreditsResponse in the standard envelope.
type RespCredits struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CreditsResponse          `json:"data"`
}

// RespListTransactions wraps ListTransactionsResponse in the standard envelope.
type RespListTransactions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListTransactionsResponse `json:"data"`
}

// RespStatistics wraps statistics.Response in the standard envelope.
type RespStatistics struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Response      `json:"data"`
}
