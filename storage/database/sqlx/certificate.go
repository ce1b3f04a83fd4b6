package sqlxdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/darasa/core/certificate"
)

type certificateRepository struct {
	db *sqlx.DB
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *sql.DB) certificate.Repository {
	return &certificateRepository{db: sqlx.NewDb(db, "postgres")}
}

type certificateRow struct {
	ID              string         `db:"id"`
	CertificateID   string         `db:"certificate_id"`
	Student         string         `db:"student_id"`
	Course          string         `db:"course_id"`
	Instructor      string         `db:"instructor_id"`
	Enrollment      string         `db:"enrollment_id"`
	VerificationURL string         `db:"verification_url"`
	IntegrityHash   string         `db:"integrity_hash"`
	Template        string         `db:"template"`
	DesignOptions   []byte         `db:"design_options"`
	PDFURL          sql.NullString `db:"pdf_url"`
	IsRevoked       bool           `db:"is_revoked"`
	RevokedDate     null.Time      `db:"revoked_date"`
	RevokedReason   null.String    `db:"revoked_reason"`
	IssueDate       time.Time      `db:"issue_date"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r certificateRow) toCertificate() (certificate.Certificate, error) {
	cert := certificate.Certificate{
		ID:              r.ID,
		CertificateID:   r.CertificateID,
		Student:         r.Student,
		Course:          r.Course,
		Instructor:      r.Instructor,
		Enrollment:      r.Enrollment,
		VerificationURL: r.VerificationURL,
		IntegrityHash:   r.IntegrityHash,
		Template:        r.Template,
		PDFURL:          r.PDFURL.String,
		IsRevoked:       r.IsRevoked,
		RevokedDate:     r.RevokedDate,
		RevokedReason:   r.RevokedReason,
		IssueDate:       r.IssueDate,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.DesignOptions) > 0 {
		if err := json.Unmarshal(r.DesignOptions, &cert.DesignOptions); err != nil {
			return certificate.Certificate{}, errors.Wrap(err, "decoding design options")
		}
	}
	return cert, nil
}

const selectCertificate = `SELECT id, certificate_id, student_id, course_id, instructor_id, enrollment_id,
verification_url, integrity_hash, template, design_options, pdf_url,
is_revoked, revoked_date, revoked_reason, issue_date, created_at, updated_at FROM certificate`

func (repo *certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	cert.ID = uuid.NewString()
	designOpts, err := json.Marshal(cert.DesignOptions)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "encoding design options")
	}

	q := `INSERT INTO certificate (id, certificate_id, student_id, course_id, instructor_id, enrollment_id,
verification_url, integrity_hash, template, design_options, pdf_url, issue_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = repo.db.ExecContext(ctx, q,
		cert.ID, cert.CertificateID, cert.Student, cert.Course, cert.Instructor, cert.Enrollment,
		cert.VerificationURL, cert.IntegrityHash, cert.Template, designOpts, cert.PDFURL,
		cert.IssueDate, cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation && pqErr.Constraint == "certificate_enrollment_id_key" {
			return certificate.Certificate{}, certificate.ErrAlreadyIssued
		}
		return certificate.Certificate{}, errors.Wrap(err, "creating certificate")
	}
	return cert, nil
}

func (repo *certificateRepository) GetCertificateByID(ctx context.Context, certificateID string) (certificate.Certificate, error) {
	return repo.get(ctx, selectCertificate+` WHERE certificate_id = $1`, certificateID)
}

func (repo *certificateRepository) GetCertificateByEnrollment(ctx context.Context, enrollmentID string) (certificate.Certificate, error) {
	return repo.get(ctx, selectCertificate+` WHERE enrollment_id = $1`, enrollmentID)
}

func (repo *certificateRepository) GetActiveCertificateByHash(ctx context.Context, hash string) (certificate.Certificate, error) {
	return repo.get(ctx, selectCertificate+` WHERE integrity_hash = $1 AND is_revoked = FALSE`, hash)
}

func (repo *certificateRepository) get(ctx context.Context, q string, arg interface{}) (certificate.Certificate, error) {
	var row certificateRow
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return certificate.Certificate{}, certificate.ErrNotFound
		}
		return certificate.Certificate{}, errors.Wrap(err, "getting certificate")
	}
	return row.toCertificate()
}

func (repo *certificateRepository) QueryCertificatesByStudent(ctx context.Context, studentID string) ([]certificate.Certificate, error) {
	var rows []certificateRow
	q := selectCertificate + ` WHERE student_id = $1 ORDER BY issue_date DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	certs := make([]certificate.Certificate, 0, len(rows))
	for _, row := range rows {
		cert, err := row.toCertificate()
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func (repo *certificateRepository) UpdateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	designOpts, err := json.Marshal(cert.DesignOptions)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "encoding design options")
	}

	// issuance fields are immutable; only presentation and revocation change
	q := `UPDATE certificate SET template = $2, design_options = $3, pdf_url = $4,
is_revoked = $5, revoked_date = $6, revoked_reason = $7, updated_at = $8
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q,
		cert.ID, cert.Template, designOpts, cert.PDFURL,
		cert.IsRevoked, cert.RevokedDate, cert.RevokedReason, cert.UpdatedAt,
	)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "updating certificate")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	return cert, nil
}
