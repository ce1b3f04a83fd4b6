package certificate_test

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/elimuhq/darasa/core"
	"github.com/elimuhq/darasa/core/certificate"
	"github.com/elimuhq/darasa/core/course"
	"github.com/elimuhq/darasa/core/user"
	emailsvc "github.com/elimuhq/darasa/services/email"
	dummydb "github.com/elimuhq/darasa/storage/database/dummy"
	testutil "github.com/elimuhq/darasa/tests"
)

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, data core.CertificateData) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return "https://cdn.test/certificates/" + data.Template + "/" + data.CertificateID + ".pdf", nil
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type testEnv struct {
	usrRepo  user.Repository
	crsRepo  course.Repository
	usrSvc   user.Service
	crsSvc   course.Service
	renderer *fakeRenderer
	svc      certificate.Service

	admin      user.User
	student    user.User
	instructor user.User
	course     course.Course
	enrollment course.Enrollment
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	conf := &core.Config{
		AppName:          "Darasa",
		BaseURL:          "http://localhost:8000",
		DefaultFromEmail: mail.Address{Name: "Darasa", Address: "noreply@localhost"},
	}

	env := &testEnv{
		usrRepo:  dummydb.NewUserRepository(db),
		crsRepo:  dummydb.NewCourseRepository(db),
		renderer: new(fakeRenderer),
	}
	env.usrSvc = user.NewService(env.usrRepo)
	env.crsSvc = course.NewService(env.crsRepo)
	emailsvc.ClearSentMessages()
	env.svc = certificate.NewService(
		dummydb.NewCertificateRepository(db),
		env.usrSvc, env.crsSvc, env.renderer,
		emailsvc.NewConsoleServiceMock(conf), conf,
	)

	env.admin = testutil.CreateUser(t, env.usrRepo, "Admin", "absolute", "admin@test.cd", user.AdminRoles, true)
	env.student = testutil.CreateUser(t, env.usrRepo, "Sia Bonga", "siabonga", "sia@test.cd", user.StudentRoles, true)
	env.instructor = testutil.CreateUser(t, env.usrRepo, "Prof Mosala", "promosala", "prof@test.cd", user.InstructorRoles, true)
	env.course = testutil.CreateCourse(t, env.crsRepo, "Intro to Lingala", env.instructor.ID)
	env.enrollment = testutil.CreateEnrollment(t, env.crsRepo, env.student.ID, env.course.ID, course.StatusCompleted)
	return env
}

func (env *testEnv) issue(t *testing.T) certificate.Certificate {
	t.Helper()
	cert, err := env.svc.Issue(context.Background(), certificate.NewCertificate{
		Student:    env.student.ID,
		Course:     env.course.ID,
		Enrollment: env.enrollment.ID,
	})
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	return cert
}

func Test_service_Issue(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	cert := env.issue(t)
	if cert.VerificationCode == "" {
		t.Error("Issue() must return the raw verification code")
	}
	if !strings.HasPrefix(cert.CertificateID, "CERT-") {
		t.Errorf("CertificateID = %s, want CERT- prefix", cert.CertificateID)
	}
	if cert.IntegrityHash != certificate.HashCode(cert.VerificationCode) {
		t.Error("IntegrityHash must be the digest of the verification code")
	}
	if !strings.HasSuffix(cert.VerificationURL, "/v1/certificates/verify/"+cert.VerificationCode) {
		t.Errorf("unexpected VerificationURL: %s", cert.VerificationURL)
	}
	if cert.PDFURL == "" {
		t.Error("PDFURL must be set")
	}
	if cert.Template != certificate.DefaultTemplate {
		t.Errorf("Template = %s, want %s", cert.Template, certificate.DefaultTemplate)
	}
	if cert.DesignOptions == nil {
		t.Error("DesignOptions must default")
	}
	if got := len(emailsvc.GetSentMessages()); got != 1 {
		t.Errorf("sent %d emails, want 1", got)
	}

	// enrollment is now certified
	if _, err := env.svc.Issue(ctx, certificate.NewCertificate{
		Student:    env.student.ID,
		Course:     env.course.ID,
		Enrollment: env.enrollment.ID,
	}); errors.Cause(err) != certificate.ErrAlreadyIssued {
		t.Errorf("Issue() error = %v, want ErrAlreadyIssued", err)
	}
}

func Test_service_Issue_validation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	pending := testutil.CreateEnrollment(t, env.crsRepo, env.instructorAsStudent(t).ID, env.course.ID, course.StatusPending)

	otherCourse := testutil.CreateCourse(t, env.crsRepo, "Advanced Swahili", env.instructor.ID)

	tests := []struct {
		name string
		nc   certificate.NewCertificate
	}{
		{name: "not a student", nc: certificate.NewCertificate{Student: env.instructor.ID, Course: env.course.ID, Enrollment: env.enrollment.ID}},
		{name: "unknown student", nc: certificate.NewCertificate{Student: "nope", Course: env.course.ID, Enrollment: env.enrollment.ID}},
		{name: "unknown enrollment", nc: certificate.NewCertificate{Student: env.student.ID, Course: env.course.ID, Enrollment: "nope"}},
		{name: "course not completed", nc: certificate.NewCertificate{Student: pending.Student, Course: env.course.ID, Enrollment: pending.ID}},
		{name: "enrollment mismatch", nc: certificate.NewCertificate{Student: env.student.ID, Course: otherCourse.ID, Enrollment: env.enrollment.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Issue(ctx, tt.nc)
			if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
				t.Errorf("Issue() error = %v, want *core.ValidationError", err)
			}
		})
	}
}

// instructorAsStudent creates an extra student so pending enrollments do not
// collide with the main fixture's unique (student, course) pair.
func (env *testEnv) instructorAsStudent(t *testing.T) user.User {
	t.Helper()
	return testutil.CreateUser(t, env.usrRepo, "Keba Nzuzi", "kebanzuzi", "keba@test.cd", user.StudentRoles, true)
}

func Test_service_Issue_concurrent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	nc := certificate.NewCertificate{
		Student:    env.student.ID,
		Course:     env.course.ID,
		Enrollment: env.enrollment.ID,
	}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Issue(ctx, nc)
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch errors.Cause(err) {
		case nil:
			succeeded++
		case certificate.ErrAlreadyIssued:
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d issuances succeeded, want exactly 1", succeeded)
	}
	if conflicted != n-1 {
		t.Errorf("%d issuances conflicted, want %d", conflicted, n-1)
	}
}

func Test_service_VerifyPublic(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	cert := env.issue(t)

	v, err := env.svc.VerifyPublic(ctx, cert.VerificationCode)
	if err != nil {
		t.Fatalf("VerifyPublic() failed: %v", err)
	}
	if !v.IsValid {
		t.Error("IsValid = false, want true")
	}
	if v.CertificateID != cert.CertificateID {
		t.Errorf("CertificateID = %s, want %s", v.CertificateID, cert.CertificateID)
	}
	if v.Student != env.student.Name {
		t.Errorf("Student = %s, want %s", v.Student, env.student.Name)
	}
	if v.Course != env.course.Title {
		t.Errorf("Course = %s, want %s", v.Course, env.course.Title)
	}

	// verification is non-consuming
	if _, err = env.svc.VerifyPublic(ctx, cert.VerificationCode); err != nil {
		t.Errorf("second VerifyPublic() failed: %v", err)
	}

	for _, code := range []string{"", "wrong", certificate.HashCode(cert.VerificationCode)} {
		if _, err = env.svc.VerifyPublic(ctx, code); errors.Cause(err) != certificate.ErrNotFound {
			t.Errorf("VerifyPublic(%q) error = %v, want ErrNotFound", code, err)
		}
	}

	// revoked certificates are indistinguishable from nonexistent ones
	if _, err = env.svc.Revoke(ctx, cert.CertificateID, "cheating"); err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if _, err = env.svc.VerifyPublic(ctx, cert.VerificationCode); errors.Cause(err) != certificate.ErrNotFound {
		t.Errorf("VerifyPublic() after revocation error = %v, want ErrNotFound", err)
	}
}

func Test_service_GetByID(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	cert := env.issue(t)
	other := testutil.CreateUser(t, env.usrRepo, "Nosy", "nosypeer", "nosy@test.cd", user.StudentRoles, true)

	tests := []struct {
		name      string
		requester user.User
		wantErr   error
	}{
		{name: "admin", requester: env.admin},
		{name: "owning student", requester: env.student},
		{name: "course instructor", requester: env.instructor},
		{name: "other student", requester: other, wantErr: certificate.ErrNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := env.svc.GetByID(ctx, cert.CertificateID, tt.requester)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("GetByID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if d.StudentName != env.student.Name {
					t.Errorf("StudentName = %s, want %s", d.StudentName, env.student.Name)
				}
				if d.CourseTitle != env.course.Title {
					t.Errorf("CourseTitle = %s, want %s", d.CourseTitle, env.course.Title)
				}
				if d.VerificationCode != "" {
					t.Error("stored reads must never expose the verification code")
				}
			}
		})
	}

	if _, err := env.svc.GetByID(ctx, "CERT-NOPE", env.admin); errors.Cause(err) != certificate.ErrNotFound {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}

	// revoked certificates stay visible to authorized readers
	if _, err := env.svc.Revoke(ctx, cert.CertificateID, ""); err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	d, err := env.svc.GetByID(ctx, cert.CertificateID, env.student)
	if err != nil {
		t.Fatalf("GetByID() after revocation failed: %v", err)
	}
	if !d.IsRevoked {
		t.Error("IsRevoked = false, want true")
	}
	if d.RevokedReason.String != certificate.DefaultRevokedReason {
		t.Errorf("RevokedReason = %s, want %s", d.RevokedReason.String, certificate.DefaultRevokedReason)
	}
}

func Test_service_ListForStudent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.issue(t)

	crs2 := testutil.CreateCourse(t, env.crsRepo, "Advanced Lingala", env.instructor.ID)
	enr2 := testutil.CreateEnrollment(t, env.crsRepo, env.student.ID, crs2.ID, course.StatusCompleted)
	if _, err := env.svc.Issue(ctx, certificate.NewCertificate{
		Student:    env.student.ID,
		Course:     crs2.ID,
		Enrollment: enr2.ID,
	}); err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	details, err := env.svc.ListForStudent(ctx, env.student.ID, env.student)
	if err != nil {
		t.Fatalf("ListForStudent() failed: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("got %d certificates, want 2", len(details))
	}

	other := testutil.CreateUser(t, env.usrRepo, "Nosy", "nosypeer", "nosy@test.cd", user.StudentRoles, true)
	if _, err = env.svc.ListForStudent(ctx, env.student.ID, other); errors.Cause(err) != certificate.ErrNotAllowed {
		t.Errorf("ListForStudent() error = %v, want ErrNotAllowed", err)
	}
	if _, err = env.svc.ListForStudent(ctx, env.student.ID, env.admin); err != nil {
		t.Errorf("ListForStudent() as admin failed: %v", err)
	}

	// certificates with dangling references are silently excluded
	demoted := env.instructor
	demoted.Roles = user.StudentRoles
	if _, err = env.usrRepo.UpdateUser(ctx, demoted, nil); err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}
	details, err = env.svc.ListForStudent(ctx, env.student.ID, env.admin)
	if err != nil {
		t.Fatalf("ListForStudent() failed: %v", err)
	}
	if len(details) != 0 {
		t.Errorf("got %d certificates after instructor demotion, want 0", len(details))
	}
}

func Test_service_Revoke(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	cert := env.issue(t)

	revoked, err := env.svc.Revoke(ctx, cert.CertificateID, "  ")
	if err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if !revoked.IsRevoked {
		t.Error("IsRevoked = false, want true")
	}
	if revoked.RevokedReason.String != certificate.DefaultRevokedReason {
		t.Errorf("RevokedReason = %s, want default", revoked.RevokedReason.String)
	}
	if !revoked.RevokedDate.Valid {
		t.Error("RevokedDate must be set")
	}

	// re-revoking is a no-op that preserves the original stamp
	again, err := env.svc.Revoke(ctx, cert.CertificateID, "different reason")
	if err != nil {
		t.Fatalf("second Revoke() failed: %v", err)
	}
	if again.RevokedReason.String != revoked.RevokedReason.String {
		t.Error("re-revocation must not overwrite the reason")
	}
	if !again.RevokedDate.Time.Equal(revoked.RevokedDate.Time) {
		t.Error("re-revocation must not overwrite the date")
	}

	if _, err = env.svc.Revoke(ctx, "CERT-NOPE", ""); errors.Cause(err) != certificate.ErrNotFound {
		t.Errorf("Revoke() error = %v, want ErrNotFound", err)
	}
}

func Test_service_UpdateDesign(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	cert := env.issue(t)
	renders := env.renderer.callCount()

	updated, err := env.svc.UpdateDesign(ctx, cert.CertificateID, certificate.UpdateDesign{
		Template:      "gold",
		DesignOptions: map[string]interface{}{"logo": "gold_logo.png"},
	})
	if err != nil {
		t.Fatalf("UpdateDesign() failed: %v", err)
	}
	if updated.Template != "gold" {
		t.Errorf("Template = %s, want gold", updated.Template)
	}
	if updated.DesignOptions["logo"] != "gold_logo.png" {
		t.Error("DesignOptions must shallow-merge the new values")
	}
	if updated.DesignOptions["signature"] != "default_signature.png" {
		t.Error("DesignOptions must keep untouched keys")
	}
	if updated.IntegrityHash != cert.IntegrityHash {
		t.Error("design changes must never touch the integrity hash")
	}
	if env.renderer.callCount() != renders+1 {
		t.Error("the artifact must be re-rendered")
	}

	// issued codes stay valid after a redesign
	if _, err = env.svc.VerifyPublic(ctx, cert.VerificationCode); err != nil {
		t.Errorf("VerifyPublic() after redesign failed: %v", err)
	}
}

func Test_service_Issue_mailContent(t *testing.T) {
	env := setup(t)

	cert := env.issue(t)

	msgs := emailsvc.GetSentMessages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d emails, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.To[0].Address != env.student.Email {
		t.Errorf("To = %s, want %s", msg.To[0].Address, env.student.Email)
	}
	wantSubj := fmt.Sprintf("Your certificate for %s", env.course.Title)
	if msg.Subject != wantSubj {
		t.Errorf("Subject = %q, want %q", msg.Subject, wantSubj)
	}
	if !strings.Contains(msg.Body, cert.VerificationURL) {
		t.Error("Body must contain the verification link")
	}
}
