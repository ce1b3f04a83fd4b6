package certificate

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/darasa/core"
	"github.com/elimuhq/darasa/core/course"
	"github.com/elimuhq/darasa/core/user"
)

var (
	// errors
	ErrNotFound      = errors.New("certificate not found")
	ErrAlreadyIssued = errors.New("certificate already exists for this enrollment")
	ErrNotAllowed    = errors.New("not authorized to view this certificate")
)

type (
	Repository interface {
		// CreateCertificate persists a new certificate. It must fail with
		// ErrAlreadyIssued when a certificate already references the same
		// enrollment; the store's uniqueness constraint settles concurrent
		// issuance races.
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		GetCertificateByID(ctx context.Context, certificateID string) (Certificate, error)
		GetCertificateByEnrollment(ctx context.Context, enrollmentID string) (Certificate, error)
		// GetActiveCertificateByHash looks up a non-revoked certificate by its
		// integrity hash; revoked certificates are invisible here.
		GetActiveCertificateByHash(ctx context.Context, hash string) (Certificate, error)
		QueryCertificatesByStudent(ctx context.Context, studentID string) ([]Certificate, error)
		UpdateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
	}

	// Service manages the certificate lifecycle: NONE -> ISSUED -> REVOKED,
	// with design updates as a self-loop on ISSUED.
	Service interface {
		Issue(ctx context.Context, nc NewCertificate) (Certificate, error)
		GetByID(ctx context.Context, certificateID string, requester user.User) (Detail, error)
		VerifyPublic(ctx context.Context, presentedCode string) (PublicVerification, error)
		ListForStudent(ctx context.Context, studentID string, requester user.User) ([]Detail, error)
		Revoke(ctx context.Context, certificateID, reason string) (Certificate, error)
		UpdateDesign(ctx context.Context, certificateID string, ud UpdateDesign) (Certificate, error)
	}

	service struct {
		repo     Repository
		usrSvc   user.Service
		crsSvc   course.Service
		renderer core.CertificateRenderer
		mailSvc  core.EmailService
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	usrSvc user.Service,
	crsSvc course.Service,
	renderer core.CertificateRenderer,
	mailSvc core.EmailService,
	conf *core.Config,
) Service {
	return &service{
		repo:     repo,
		usrSvc:   usrSvc,
		crsSvc:   crsSvc,
		renderer: renderer,
		mailSvc:  mailSvc,
		conf:     conf,
	}
}

func (svc *service) Issue(ctx context.Context, nc NewCertificate) (Certificate, error) {
	student, err := svc.usrSvc.GetStudent(ctx, nc.Student)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Certificate{}, core.NewValidationError(errors.New("invalid student or user is not a student"))
		}
		return Certificate{}, errors.Wrap(err, "resolving student")
	}

	enr, err := svc.crsSvc.GetEnrollment(ctx, nc.Enrollment)
	if err != nil {
		if errors.Cause(err) == course.ErrEnrollmentNotFound {
			return Certificate{}, core.NewValidationError(errors.New("enrollment not found"))
		}
		return Certificate{}, errors.Wrap(err, "resolving enrollment")
	}
	if !enr.IsCompleted() {
		return Certificate{}, core.NewValidationError(errors.New("course not completed"))
	}
	if enr.Student != nc.Student || enr.Course != nc.Course {
		return Certificate{}, core.NewValidationError(errors.New("invalid student or course for this enrollment"))
	}

	crs, err := svc.crsSvc.GetCourse(ctx, enr.Course)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return Certificate{}, core.NewValidationError(errors.New("course not found"))
		}
		return Certificate{}, errors.Wrap(err, "resolving course")
	}
	instructor, err := svc.usrSvc.GetInstructor(ctx, crs.Instructor)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Certificate{}, core.NewValidationError(errors.New("invalid instructor for this course"))
		}
		return Certificate{}, errors.Wrap(err, "resolving instructor")
	}

	// friendly pre-check; the store's uniqueness constraint remains the
	// authority under concurrent issuance
	if _, err = svc.repo.GetCertificateByEnrollment(ctx, nc.Enrollment); err == nil {
		return Certificate{}, ErrAlreadyIssued
	} else if errors.Cause(err) != ErrNotFound {
		return Certificate{}, errors.Wrap(err, "checking existing certificate")
	}

	code, hash, err := GenerateVerificationCode()
	if err != nil {
		return Certificate{}, errors.Wrap(err, "generating verification code")
	}
	certID, err := newCertificateID()
	if err != nil {
		return Certificate{}, errors.Wrap(err, "generating certificate ID")
	}

	template := nc.Template
	if template == "" {
		template = DefaultTemplate
	}
	designOpts := nc.DesignOptions
	if designOpts == nil {
		designOpts = defaultDesignOptions()
	}

	now := time.Now().UTC()
	cert := Certificate{
		CertificateID:   certID,
		Student:         nc.Student,
		Course:          nc.Course,
		Instructor:      crs.Instructor,
		Enrollment:      nc.Enrollment,
		VerificationURL: svc.verificationURL(code),
		IntegrityHash:   hash,
		Template:        template,
		DesignOptions:   designOpts,
		IssueDate:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	pdfURL, err := svc.renderer.Render(ctx, core.CertificateData{
		CertificateID:  certID,
		StudentName:    student.Name,
		CourseTitle:    crs.Title,
		InstructorName: instructor.Name,
		Template:       template,
		DesignOptions:  designOpts,
	})
	if err != nil {
		return Certificate{}, errors.Wrap(err, "rendering certificate")
	}
	cert.PDFURL = pdfURL

	created, err := svc.repo.CreateCertificate(ctx, cert)
	if err != nil {
		return Certificate{}, err
	}

	// the raw code is observable here and never again
	created.VerificationCode = code
	svc.sendIssuedMail(student, crs, created)
	return created, nil
}

func (svc *service) GetByID(ctx context.Context, certificateID string, requester user.User) (Detail, error) {
	cert, err := svc.repo.GetCertificateByID(ctx, certificateID)
	if err != nil {
		return Detail{}, err
	}

	student, err := svc.usrSvc.GetStudent(ctx, cert.Student)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Detail{}, ErrNotFound
		}
		return Detail{}, errors.Wrap(err, "resolving student")
	}
	instructor, err := svc.usrSvc.GetInstructor(ctx, cert.Instructor)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Detail{}, ErrNotFound
		}
		return Detail{}, errors.Wrap(err, "resolving instructor")
	}

	if !(requester.IsAdmin() || requester.ID == cert.Student || requester.ID == cert.Instructor) {
		return Detail{}, ErrNotAllowed
	}

	return svc.detail(ctx, cert, student, instructor), nil
}

func (svc *service) VerifyPublic(ctx context.Context, presentedCode string) (PublicVerification, error) {
	if presentedCode == "" {
		return PublicVerification{}, ErrNotFound
	}

	// revoked and nonexistent certificates are indistinguishable here so that
	// anonymous callers cannot probe revocation status
	cert, err := svc.repo.GetActiveCertificateByHash(ctx, HashCode(presentedCode))
	if err != nil {
		return PublicVerification{}, err
	}
	if !MatchCode(cert.IntegrityHash, presentedCode) {
		return PublicVerification{}, ErrNotFound
	}

	student, err := svc.usrSvc.GetStudent(ctx, cert.Student)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return PublicVerification{}, ErrNotFound
		}
		return PublicVerification{}, errors.Wrap(err, "resolving student")
	}
	if _, err = svc.usrSvc.GetInstructor(ctx, cert.Instructor); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return PublicVerification{}, ErrNotFound
		}
		return PublicVerification{}, errors.Wrap(err, "resolving instructor")
	}

	var courseTitle string
	if crs, err := svc.crsSvc.GetCourse(ctx, cert.Course); err == nil {
		courseTitle = crs.Title
	}

	return PublicVerification{
		CertificateID: cert.CertificateID,
		Student:       student.Name,
		Course:        courseTitle,
		IssueDate:     cert.IssueDate,
		IsValid:       true,
	}, nil
}

func (svc *service) ListForStudent(ctx context.Context, studentID string, requester user.User) ([]Detail, error) {
	if requester.IsStudent() && !requester.IsAdmin() && requester.ID != studentID {
		return nil, ErrNotAllowed
	}

	certs, err := svc.repo.QueryCertificatesByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	details := make([]Detail, 0, len(certs))
	for _, cert := range certs {
		// silently exclude certificates whose references no longer resolve
		student, err := svc.usrSvc.GetStudent(ctx, cert.Student)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return nil, errors.Wrap(err, "resolving student")
		}
		instructor, err := svc.usrSvc.GetInstructor(ctx, cert.Instructor)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return nil, errors.Wrap(err, "resolving instructor")
		}
		details = append(details, svc.detail(ctx, cert, student, instructor))
	}
	return details, nil
}

// Revoke is a one-way transition; revoking an already-revoked certificate is
// a no-op that returns the stored record unchanged, preserving the original
// revocation stamp for audit.
func (svc *service) Revoke(ctx context.Context, certificateID, reason string) (Certificate, error) {
	cert, err := svc.repo.GetCertificateByID(ctx, certificateID)
	if err != nil {
		return Certificate{}, err
	}
	if cert.IsRevoked {
		return cert, nil
	}

	if reason = core.CleanString(reason); reason == "" {
		reason = DefaultRevokedReason
	}
	cert.IsRevoked = true
	cert.RevokedDate = null.TimeFrom(time.Now().UTC())
	cert.RevokedReason = null.StringFrom(reason)
	cert.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdateCertificate(ctx, cert)
	if err != nil {
		return Certificate{}, err
	}
	svc.sendRevokedMail(ctx, updated)
	return updated, nil
}

func (svc *service) UpdateDesign(ctx context.Context, certificateID string, ud UpdateDesign) (Certificate, error) {
	cert, err := svc.repo.GetCertificateByID(ctx, certificateID)
	if err != nil {
		return Certificate{}, err
	}

	if ud.Template != "" {
		cert.Template = ud.Template
	}
	if ud.DesignOptions != nil {
		if cert.DesignOptions == nil {
			cert.DesignOptions = make(map[string]interface{}, len(ud.DesignOptions))
		}
		for k, v := range ud.DesignOptions {
			cert.DesignOptions[k] = v
		}
	}

	// design changes regenerate the artifact but never touch the integrity
	// hash: issued verification codes stay valid
	data := core.CertificateData{
		CertificateID: cert.CertificateID,
		Template:      cert.Template,
		DesignOptions: cert.DesignOptions,
	}
	if student, err := svc.usrSvc.GetByID(ctx, cert.Student); err == nil {
		data.StudentName = student.Name
	}
	if instructor, err := svc.usrSvc.GetByID(ctx, cert.Instructor); err == nil {
		data.InstructorName = instructor.Name
	}
	if crs, err := svc.crsSvc.GetCourse(ctx, cert.Course); err == nil {
		data.CourseTitle = crs.Title
	}
	pdfURL, err := svc.renderer.Render(ctx, data)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "rendering certificate")
	}
	cert.PDFURL = pdfURL
	cert.UpdatedAt = time.Now().UTC()

	return svc.repo.UpdateCertificate(ctx, cert)
}

func (svc *service) detail(ctx context.Context, cert Certificate, student, instructor user.User) Detail {
	d := Detail{
		Certificate:    cert,
		StudentName:    student.Name,
		InstructorName: instructor.Name,
	}
	if crs, err := svc.crsSvc.GetCourse(ctx, cert.Course); err == nil {
		d.CourseTitle = crs.Title
	}
	return d
}

func (svc *service) verificationURL(code string) string {
	return fmt.Sprintf("%s/v1/certificates/verify/%s", svc.conf.BaseURL, code)
}

func (svc *service) sendIssuedMail(student user.User, crs course.Course, cert Certificate) {
	if student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject: "Your certificate for " + crs.Title,
		Body: fmt.Sprintf(
			"Congratulations %s!\n\nYour certificate %s for %q has been issued.\n"+
				"Anyone can confirm its authenticity at:\n%s\n\nKeep this link private if you prefer.",
			student.Name, cert.CertificateID, crs.Title, cert.VerificationURL,
		),
	})
}

func (svc *service) sendRevokedMail(ctx context.Context, cert Certificate) {
	student, err := svc.usrSvc.GetByID(ctx, cert.Student)
	if err != nil || student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject: "Certificate " + cert.CertificateID + " revoked",
		Body: fmt.Sprintf(
			"Your certificate %s has been revoked.\nReason: %s",
			cert.CertificateID, cert.RevokedReason.String,
		),
	})
}
