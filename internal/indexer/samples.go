package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sampleDocuments seed an empty knowledge base so a fresh install can answer
// something. Keys are file names.
var sampleDocuments = map[string]string{
	"company_info.txt": `Company Name: Your Company
Founded: 2020
Mission: To provide excellent customer service and innovative solutions.

Business Hours: Monday-Friday, 9 AM - 5 PM EST
Support Email: support@yourcompany.com
Phone: 1-800-555-0123

We are committed to helping our customers succeed.`,

	"shipping_policy.txt": `Shipping Policy

Standard Shipping: 5-7 business days
Express Shipping: 2-3 business days
Overnight Shipping: Next business day

Free shipping on orders over $50.

We ship to all 50 states and internationally to select countries.
Tracking information is provided once your order ships.`,

	"return_policy.txt": `Return Policy

We offer a 30-day return policy on most items.

To be eligible for a return:
- Item must be unused and in original packaging
- Must have receipt or proof of purchase
- Return must be initiated within 30 days of purchase

Refunds are processed within 5-7 business days.

Some items are non-returnable:
- Perishable goods
- Custom or personalized items
- Digital products`,

	"faq.txt": `Frequently Asked Questions

Q: How do I track my order?
A: You can track your order using the tracking number sent to your email.

Q: What payment methods do you accept?
A: We accept Visa, MasterCard, American Express, PayPal, and Apple Pay.

Q: Do you offer international shipping?
A: Yes, we ship to select countries. Additional fees may apply.

Q: How do I change or cancel my order?
A: Contact customer support within 24 hours of placing your order.

Q: What is your warranty policy?
A: Most products come with a 1-year manufacturer warranty.`,
}

// SeedSamples writes the sample documents into dir when it holds no indexable
// files. It returns the names written; an empty result means dir already had content.
func (idx *Indexer) SeedSamples(dir string) ([]string, error) {
	if dir == "" {
		dir = idx.root
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create knowledge directory: %w", err)
	}
	existing, err := idx.files(dir)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}
	var written []string
	for _, name := range SampleNames() {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(strings.TrimSpace(sampleDocuments[name])+"\n"), 0644); err != nil {
			return written, fmt.Errorf("write sample %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// SampleNames returns the sample document file names in a fixed order.
func SampleNames() []string {
	return []string{"company_info.txt", "faq.txt", "return_policy.txt", "shipping_policy.txt"}
}
