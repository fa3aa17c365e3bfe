package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BuiltinCatalog returns the capability definitions shipped with the binary.
// Additional definitions can be layered on top from a YAML catalog file, so
// adding a capability is a data change rather than a code change.
func BuiltinCatalog() []Capability {
	return []Capability{
		{
			Name:               "sendCustomerEmail",
			Description:        "Send an email to a customer on behalf of the organization",
			Category:           CategoryMessaging,
			RiskLevel:          RiskHigh,
			Destructive:        true,
			AffectedEntityType: "customer",
		},
		{
			Name:               "createInvoice",
			Description:        "Create a new invoice for a customer",
			Category:           CategoryFinancial,
			RiskLevel:          RiskHigh,
			Destructive:        true,
			AffectedEntityType: "invoice",
		},
		{
			Name:               "recordPayment",
			Description:        "Record a payment against an outstanding invoice",
			Category:           CategoryFinancial,
			RiskLevel:          RiskHigh,
			Destructive:        true,
			AffectedEntityType: "payment",
		},
		{
			Name:               "rescheduleJob",
			Description:        "Move a scheduled job to a different date or time",
			Category:           CategoryScheduling,
			RiskLevel:          RiskMedium,
			Destructive:        true,
			AffectedEntityType: "job",
		},
		{
			Name:               "updateCustomerRecord",
			Description:        "Update contact or account details on a customer record",
			Category:           CategoryCRM,
			RiskLevel:          RiskMedium,
			Destructive:        true,
			AffectedEntityType: "customer",
		},
		{
			Name:               "getJobCostingReport",
			Description:        "Generate a job costing report for a date range",
			Category:           CategoryReporting,
			RiskLevel:          RiskLow,
			Destructive:        false,
			AffectedEntityType: "report",
		},
		{
			Name:               "listUpcomingJobs",
			Description:        "List jobs scheduled in the coming days",
			Category:           CategoryScheduling,
			RiskLevel:          RiskLow,
			Destructive:        false,
			AffectedEntityType: "job",
		},
		{
			Name:               "searchCustomers",
			Description:        "Search customer records by name, email, or phone",
			Category:           CategoryCRM,
			RiskLevel:          RiskLow,
			Destructive:        false,
			AffectedEntityType: "customer",
		},
	}
}

// catalogFile is the YAML shape of an on-disk capability catalog.
type catalogFile struct {
	Capabilities []Capability `yaml:"capabilities"`
}

// LoadCatalogFile parses capability definitions from a YAML file.
// The file holds a top-level "capabilities" list with the same fields as
// the Capability struct.
func LoadCatalogFile(path string) ([]Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse capability catalog %s: %w", path, err)
	}
	return file.Capabilities, nil
}

// NewBuiltinRegistry creates a registry populated with the builtin catalog
// plus any extra definitions, leaving it unfrozen so handlers can be bound.
func NewBuiltinRegistry(extra ...Capability) (*Registry, error) {
	r := NewRegistry()
	for _, c := range BuiltinCatalog() {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	for _, c := range extra {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}
