package connectors

import (
	"errors"
	"fmt"
)

// BinanceErrorCodes maps the spot error codes the engine reacts to.
var BinanceErrorCodes = map[int]string{
	-1003: "TOO_MANY_REQUESTS",       // Rate limit exceeded
	-1013: "INVALID_QUANTITY_FILTER", // LOT_SIZE / MIN_NOTIONAL violated
	-1021: "INVALID_TIMESTAMP",       // Timestamp outside recvWindow
	-1022: "INVALID_SIGNATURE",       // Signature mismatch
	-1100: "ILLEGAL_CHARS",           // Illegal characters in a parameter
	-1121: "BAD_SYMBOL",              // Invalid symbol
	-2010: "NEW_ORDER_REJECTED",      // e.g. insufficient balance
	-2011: "CANCEL_REJECTED",         // Unknown order or already closed
	-2013: "NO_SUCH_ORDER",           // Order does not exist
	-2014: "BAD_API_KEY_FMT",         // API key format invalid
	-2015: "REJECTED_MBX_KEY",        // Invalid key, IP or permissions
}

// GetErrorMsg returns a readable name for a Binance error code.
func GetErrorMsg(code int) string {
	if msg, ok := BinanceErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_BINANCE_ERROR_%d", code)
}

// IsOrderGone reports an error meaning the order no longer exists remotely.
func IsOrderGone(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == -2011 || apiErr.Code == -2013
}
