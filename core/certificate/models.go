package certificate

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
)

// DefaultTemplate is used when the caller does not pick one at issuance.
const DefaultTemplate = "default"

// DefaultRevokedReason is recorded when a revocation carries no reason.
const DefaultRevokedReason = "No reason provided"

func defaultDesignOptions() map[string]interface{} {
	return map[string]interface{}{
		"template":  DefaultTemplate,
		"colors":    map[string]interface{}{"primary": "#000000", "secondary": "#ffffff"},
		"logo":      "default_logo.png",
		"signature": "default_signature.png",
	}
}

type Certificate struct {
	ID            string `json:"-"` // storage key
	CertificateID string `json:"certificate_id"`

	Student    string `json:"student"`
	Course     string `json:"course"`
	Instructor string `json:"instructor"`
	Enrollment string `json:"enrollment"` // uniqueness key

	VerificationURL string `json:"verification_url"`
	IntegrityHash   string `json:"-"` // digest of the verification code; code itself is not stored

	Template      string                 `json:"template"`
	DesignOptions map[string]interface{} `json:"design_options"`
	PDFURL        string                 `json:"pdf_url"`

	IsRevoked     bool        `json:"is_revoked"`
	RevokedDate   null.Time   `json:"revoked_date,omitempty"`
	RevokedReason null.String `json:"revoked_reason,omitempty"`

	IssueDate time.Time `json:"issue_date"` // UTC
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	// VerificationCode is only populated on the value returned from Issue;
	// it cannot be recovered afterwards.
	VerificationCode string `json:"verification_code,omitempty"`
}

// Detail is a certificate with its identity references resolved for display.
type Detail struct {
	Certificate
	StudentName    string `json:"student_name"`
	InstructorName string `json:"instructor_name"`
	CourseTitle    string `json:"course_title"`
}

// PublicVerification is the minimal projection returned to anonymous
// verifiers; it reveals nothing about revoked or nonexistent certificates.
type PublicVerification struct {
	CertificateID string    `json:"certificate_id"`
	Student       string    `json:"student"`
	Course        string    `json:"course"`
	IssueDate     time.Time `json:"issue_date"`
	IsValid       bool      `json:"is_valid"`
}

// NewCertificate contains information needed to issue a new Certificate.
type NewCertificate struct {
	Student       string                 `json:"student" validate:"required"`
	Course        string                 `json:"course" validate:"required"`
	Enrollment    string                 `json:"enrollment" validate:"required"`
	Template      string                 `json:"template"`
	DesignOptions map[string]interface{} `json:"design_options"`
}

func (nc *NewCertificate) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

// UpdateDesign defines the presentation fields that may change after issuance.
// DesignOptions are shallow-merged into the existing options.
type UpdateDesign struct {
	Template      string                 `json:"template"`
	DesignOptions map[string]interface{} `json:"design_options"`
}
