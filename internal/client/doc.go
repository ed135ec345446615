// Package client talks to the remote response service.
//
// # Protocol
//
// A turn is a single JSON request:
//
//	POST /chat
//	{
//	  "message": "...",
//	  "history": [{"role": "user", "text": "..."}, {"role": "model", "text": "..."}],
//	  "fileContent": "<base64>" | null,
//	  "product": "...", "targetCustomer": "...", "geographicMarket": "...",
//	  "pricingStrategy": "...", "mainChannels": "..."
//	}
//
// answered with 200 and {"response": "..."}.
//
// # Errors
//
//   - ErrStatus: the service answered with anything other than 200
//   - ErrMalformedResponse: the body was not JSON or had no "response" field
//
// Transport failures and timeouts are returned as-is from net/http. Every
// failure is final; the caller decides whether to retry.
package client
