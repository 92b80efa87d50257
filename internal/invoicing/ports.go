package invoicing

import "context"

// Catalog exposes already-loaded reference data.
type Catalog interface {
	Reference() ReferenceData
}

// StaticCatalog is a Catalog over a fixed snapshot.
type StaticCatalog ReferenceData

// Reference implements Catalog.
func (c StaticCatalog) Reference() ReferenceData {
	return ReferenceData(c)
}

// Submitter persists a draft and returns the created invoice. A returned error
// carries a user-facing message.
type Submitter interface {
	SubmitInvoice(ctx context.Context, draft Draft) (Invoice, error)
}

// Printer renders a persisted invoice.
type Printer interface {
	Print(ctx context.Context, invoice Invoice, ref ReferenceData, kind Kind) error
}

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notifier delivers user-facing notices. It is fire-and-forget.
type Notifier interface {
	Notify(kind NoticeKind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind NoticeKind, message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(kind NoticeKind, message string) {
	f(kind, message)
}
