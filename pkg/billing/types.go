package billing

import "time"

// Item is one billing line as the provider reports it, before
// normalization into a raw record.
type Item struct {
	InstanceID       string
	NickName         string
	BillingDate      string
	ProductCode      string
	ProductName      string
	ProductType      string
	ProductDetail    string
	BillingItem      string
	ItemType         string
	SubscriptionType string
	Region           string
	Zone             string
	InstanceSpec     string
	Tag              string
	ResourceGroup    string
	Currency         string
	Usage            string
	UsageUnit        string
	Cost             float64
	ListPrice        string
	ServicePeriod    string
}

// SnapshotChain is one snapshot chain as reported by the compute API.
// SizeBytes drives the proportional split of regional snapshot costs.
type SnapshotChain struct {
	ChainID      string
	SourceDiskID string
	InstanceID   string
	Region       string
	SizeBytes    int64
	SnapshotNum  int
}

// Discount is one round-down discount entry for a billing month
type Discount struct {
	InstanceID string
	Month      time.Time
	Amount     float64
}

// UsageRecord is one side-channel usage observation, priced by the
// account's cost model rather than a provider bill.
type UsageRecord struct {
	ResourceID string
	Name       string
	Kind       string
	Start      time.Time
	End        time.Time
	Hours      float64
	CPUHours   float64
	MemGBHours float64
	Labels     map[string]string
}
