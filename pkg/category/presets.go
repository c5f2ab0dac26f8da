package category

// Preset category ids.
const (
	Bank       = "bank"
	Card       = "card"
	Identity   = "identity"
	Credential = "credential"
	Note       = "note"
	Other      = "other"
)

// PresetIDs lists the presets in display order.
var PresetIDs = []string{Bank, Card, Identity, Credential, Note, Other}

// IsPreset reports whether id names a built-in category.
func IsPreset(id string) bool {
	switch id {
	case Bank, Card, Identity, Credential, Note, Other:
		return true
	}
	return false
}

// Presets returns fresh copies of the built-in categories.
func Presets() []Category {
	out := []Category{
		{
			ID:    Bank,
			Label: "Bank Account",
			Icon:  "bank",
			Color: Gradient{Start: "#1e3a8a", End: "#3b82f6"},
			Fields: []FieldDefinition{
				{Key: "bankName", Label: "Bank Name", Type: FieldText, Required: true},
				{Key: "accountHolder", Label: "Account Holder", Type: FieldText},
				{Key: "accountNumber", Label: "Account Number", Type: FieldNumber, Required: true, Sensitive: true},
				{Key: "ifscCode", Label: "IFSC Code", Type: FieldText, Placeholder: "SBIN0001234"},
				{Key: "branch", Label: "Branch", Type: FieldText},
				{Key: "accountType", Label: "Account Type", Type: FieldSelect, Options: []string{"Savings", "Current", "Salary", "Fixed Deposit"}},
			},
		},
		{
			ID:    Card,
			Label: "Card",
			Icon:  "credit-card",
			Color: Gradient{Start: "#7c2d12", End: "#f97316"},
			Fields: []FieldDefinition{
				{Key: "cardholderName", Label: "Cardholder Name", Type: FieldText},
				{Key: "cardNumber", Label: "Card Number", Type: FieldNumber, Sensitive: true},
				{Key: "lastFourDigits", Label: "Last 4 Digits", Type: FieldNumber, Placeholder: "1234"},
				{Key: "expiryDate", Label: "Expiry", Type: FieldText, Placeholder: "MM/YY"},
				{Key: "cvv", Label: "CVV", Type: FieldNumber, Sensitive: true},
				{Key: "network", Label: "Network", Type: FieldSelect, Options: []string{"Visa", "Mastercard", "RuPay", "Amex", "Other"}},
			},
		},
		{
			ID:    Identity,
			Label: "Identity Document",
			Icon:  "id-card",
			Color: Gradient{Start: "#064e3b", End: "#10b981"},
			Fields: []FieldDefinition{
				{Key: "documentType", Label: "Document Type", Type: FieldSelect, Required: true, Options: []string{"Passport", "Driving Licence", "National ID", "Voter ID", "Tax ID", "Other"}},
				{Key: "documentNumber", Label: "Document Number", Type: FieldText, Required: true, Sensitive: true},
				{Key: "fullName", Label: "Full Name", Type: FieldText},
				{Key: "dateOfBirth", Label: "Date of Birth", Type: FieldDate},
				{Key: "issueDate", Label: "Issue Date", Type: FieldDate},
				{Key: "expiryDate", Label: "Expiry Date", Type: FieldDate},
			},
		},
		{
			ID:    Credential,
			Label: "Login",
			Icon:  "key",
			Color: Gradient{Start: "#4c1d95", End: "#8b5cf6"},
			Fields: []FieldDefinition{
				{Key: "service", Label: "Service", Type: FieldText},
				{Key: "username", Label: "Username", Type: FieldText},
				{Key: "password", Label: "Password", Type: FieldText, Sensitive: true},
				{Key: "url", Label: "Website", Type: FieldURL},
				{Key: "totp", Label: "TOTP Secret", Type: FieldText, Sensitive: true},
			},
		},
		{
			ID:    Note,
			Label: "Secure Note",
			Icon:  "note",
			Color: Gradient{Start: "#713f12", End: "#eab308"},
			Fields: []FieldDefinition{
				{Key: "content", Label: "Content", Type: FieldMultiline, Sensitive: true},
			},
		},
		{
			ID:    Other,
			Label: "Other",
			Icon:  "folder",
			Color: Gradient{Start: "#1f2937", End: "#6b7280"},
			Fields: []FieldDefinition{
				{Key: "details", Label: "Details", Type: FieldMultiline},
			},
		},
	}
	for i := range out {
		out[i].IsPreset = true
	}
	return out
}
