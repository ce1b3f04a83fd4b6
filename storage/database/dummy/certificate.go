package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/elimuhq/darasa/core/certificate"
)

type certificateRepository struct {
	db *certificateTable
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *DB) certificate.Repository {
	return &certificateRepository{db: db.certificate}
}

func (repo *certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// the enrollment uniqueness check and the insert share the write lock,
	// mirroring the store's constraint under concurrent issuance
	for _, c := range repo.db.table {
		if c.Enrollment == cert.Enrollment {
			return certificate.Certificate{}, certificate.ErrAlreadyIssued
		}
	}
	cert.ID = uuid.NewString()
	repo.db.table[cert.ID] = &cert
	return cert, nil
}

func (repo *certificateRepository) GetCertificateByID(ctx context.Context, certificateID string) (certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.table {
		if c.CertificateID == certificateID {
			return *c, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) GetCertificateByEnrollment(ctx context.Context, enrollmentID string) (certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.table {
		if c.Enrollment == enrollmentID {
			return *c, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) GetActiveCertificateByHash(ctx context.Context, hash string) (certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.table {
		if c.IntegrityHash == hash && !c.IsRevoked {
			return *c, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) QueryCertificatesByStudent(ctx context.Context, studentID string) ([]certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	certs := make([]certificate.Certificate, 0)
	for _, c := range repo.db.table {
		if c.Student == studentID {
			certs = append(certs, *c)
		}
	}
	return certs, nil
}

func (repo *certificateRepository) UpdateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[cert.ID]; !ok {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	repo.db.table[cert.ID] = &cert
	return cert, nil
}
