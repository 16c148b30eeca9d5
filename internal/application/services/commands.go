package services

// AuthorizeCommand carries one authorization request into the pipeline. The
// raw card data lives only here and in the tokenization call; nothing past
// the tokenize step ever sees it.
type AuthorizeCommand struct {
	MerchantID     string
	AmountMinor    int64
	Currency       string
	CardNumber     string
	CVV            string
	ExpiryMonth    int
	ExpiryYear     int
	CardHolder     string
	SourceIP       string
	IdempotencyKey string
}

type CaptureCommand struct {
	PaymentID      string
	MerchantID     string
	IdempotencyKey string
}

type VoidCommand struct {
	PaymentID      string
	MerchantID     string
	IdempotencyKey string
}

type RefundCommand struct {
	PaymentID      string
	MerchantID     string
	AmountMinor    int64
	Reason         string
	IdempotencyKey string
}

// fingerprint is the canonical view of a command hashed into the idempotency
// request fingerprint. The CVV is excluded so the hash never depends on data
// the gateway refuses to retain.
type authorizeFingerprint struct {
	MerchantID  string
	AmountMinor int64
	Currency    string
	CardNumber  string
	ExpiryMonth int
	ExpiryYear  int
}

func (c AuthorizeCommand) fingerprint() authorizeFingerprint {
	return authorizeFingerprint{
		MerchantID:  c.MerchantID,
		AmountMinor: c.AmountMinor,
		Currency:    c.Currency,
		CardNumber:  c.CardNumber,
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  c.ExpiryYear,
	}
}
