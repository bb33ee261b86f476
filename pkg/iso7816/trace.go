package iso7816

// TRANSACTION: one raw command sent to the card and the raw answer.
//
// TRACE: the transactions that fulfilled one logical exchange. A single
// Exchange on the Client may cost several transactions when the card asks for
// GET RESPONSE (61XX) or for a corrected Le (6CXX).

// Transaction is one command/response pair as seen on the wire.
type Transaction struct {
	Command  []byte
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess() || t.Response.Status == SW_DESFIRE_OK
}

// Trace is a sequence of transactions.
type Trace []Transaction

// Last returns the final transaction of the trace, or nil.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports the outcome of the final transaction.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}
