package extract

import "github.com/dvloznov/invoice-agent/internal/invoice"

// Prompt returns the instructions sent to every oracle backend.
func Prompt() string {
	base :=
		"You are an invoice parser for Israeli supplier invoices and receipts.\n\n" +
			"Task:\n" +
			"- Read the attached invoice.\n" +
			"- Output a single JSON object with exactly these fields:\n" +
			"- \"date\": string, the invoice date as DD/MM/YYYY\n" +
			"- \"supplier_name\": string\n" +
			"- \"invoice_number\": string\n" +
			"- \"amount_before_vat\": number\n" +
			"- \"vat_amount\": number\n" +
			"- \"total_amount\": number\n" +
			"- \"category\": string, one of: " + invoice.CategoryIDs(", ") + "\n\n"

	rules :=
		"Rules:\n" +
			"- If a field is missing or unreadable, set it to null.\n" +
			"- Amounts are plain numbers without currency symbols or thousands separators.\n" +
			"- Use \"other\" when no category fits.\n\n" +
			"Return ONLY valid raw JSON.\n" +
			"Do NOT wrap the response in code fences.\n" +
			"Output must begin with \"{\" and end with \"}\".\n"

	return base + rules
}
