package echoapi_test

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/elimuhq/darasa/apps/api/echo"
	"github.com/elimuhq/darasa/core"
	"github.com/elimuhq/darasa/core/badge"
	"github.com/elimuhq/darasa/core/certificate"
	"github.com/elimuhq/darasa/core/course"
	"github.com/elimuhq/darasa/core/user"
	emailsvc "github.com/elimuhq/darasa/services/email"
	logsvc "github.com/elimuhq/darasa/services/logger"
	rendersvc "github.com/elimuhq/darasa/services/renderer"
	dummydb "github.com/elimuhq/darasa/storage/database/dummy"
	testutil "github.com/elimuhq/darasa/tests"
)

type apiEnv struct {
	server  echoapi.Server
	conf    *core.Config
	usrRepo user.Repository
	crsRepo course.Repository
	bdgRepo badge.Repository
	certSvc certificate.Service

	admin      user.User
	student    user.User
	instructor user.User
}

func setup(t *testing.T) *apiEnv {
	t.Helper()

	conf := &core.Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Darasa",
		SecretKey:        []byte("test-secret"),
		BaseURL:          "http://localhost:8000",
		DefaultFromEmail: mail.Address{Name: "Darasa", Address: "noreply@localhost"},
		Server:           core.ServerConfig{JWTExpirationDelta: time.Hour},
	}

	db, err := dummydb.Open()
	require.NoError(t, err)

	env := &apiEnv{
		conf:    conf,
		usrRepo: dummydb.NewUserRepository(db),
		crsRepo: dummydb.NewCourseRepository(db),
		bdgRepo: dummydb.NewBadgeRepository(db),
	}
	usrSvc := user.NewService(env.usrRepo)
	crsSvc := course.NewService(env.crsRepo)
	env.certSvc = certificate.NewService(
		dummydb.NewCertificateRepository(db), usrSvc, crsSvc,
		rendersvc.NewStaticRenderer(""), emailsvc.NewConsoleServiceMock(conf), conf,
	)
	bdgSvc := badge.NewService(env.bdgRepo, env.usrRepo)

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	badge.InitValidators(validate, translator)

	env.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		CertSvc:        env.certSvc,
		BdgSvc:         bdgSvc,
		DisableReqLogs: true,
	})

	env.admin = testutil.CreateUser(t, env.usrRepo, "Admin", "absolute", "admin@test.cd", user.AdminRoles, true)
	env.student = testutil.CreateUser(t, env.usrRepo, "Sia Bonga", "siabonga", "sia@test.cd", user.StudentRoles, true)
	env.instructor = testutil.CreateUser(t, env.usrRepo, "Prof Mosala", "promosala", "prof@test.cd", user.InstructorRoles, true)
	return env
}

func (env *apiEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, env.conf), env.conf)
	require.NoError(t, err)
	return token
}

func (env *apiEnv) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) issueCertificate(t *testing.T) certificate.Certificate {
	t.Helper()
	crs := testutil.CreateCourse(t, env.crsRepo, "Intro to Lingala", env.instructor.ID)
	enr := testutil.CreateEnrollment(t, env.crsRepo, env.student.ID, crs.ID, course.StatusCompleted)
	cert, err := env.certSvc.Issue(context.Background(), certificate.NewCertificate{
		Student:    env.student.ID,
		Course:     crs.ID,
		Enrollment: enr.ID,
	})
	require.NoError(t, err)
	return cert
}

func TestAPI_issueCertificate(t *testing.T) {
	env := setup(t)

	crs := testutil.CreateCourse(t, env.crsRepo, "Intro to Lingala", env.instructor.ID)
	enr := testutil.CreateEnrollment(t, env.crsRepo, env.student.ID, crs.ID, course.StatusCompleted)
	body := `{"student":"` + env.student.ID + `","course":"` + crs.ID + `","enrollment":"` + enr.ID + `"}`

	rec := env.request(t, http.MethodPost, "/v1/certificates", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/certificates", env.token(t, env.student), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/certificates", env.token(t, env.admin), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var cert certificate.Certificate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cert))
	assert.NotEmpty(t, cert.VerificationCode)
	assert.True(t, strings.HasPrefix(cert.CertificateID, "CERT-"))

	// double issuance conflicts
	rec = env.request(t, http.MethodPost, "/v1/certificates", env.token(t, env.admin), body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// missing fields fail validation
	rec = env.request(t, http.MethodPost, "/v1/certificates", env.token(t, env.admin), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_verifyCertificate(t *testing.T) {
	env := setup(t)
	cert := env.issueCertificate(t)

	// public endpoint, no token required
	rec := env.request(t, http.MethodGet, "/v1/certificates/verify/"+cert.VerificationCode, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var v certificate.PublicVerification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.IsValid)
	assert.Equal(t, cert.CertificateID, v.CertificateID)
	assert.Equal(t, env.student.Name, v.Student)

	rec = env.request(t, http.MethodGet, "/v1/certificates/verify/bogus", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// revoked certificates verify like nonexistent ones
	_, err := env.certSvc.Revoke(context.Background(), cert.CertificateID, "cheating")
	require.NoError(t, err)
	rec = env.request(t, http.MethodGet, "/v1/certificates/verify/"+cert.VerificationCode, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_retrieveCertificate(t *testing.T) {
	env := setup(t)
	cert := env.issueCertificate(t)
	other := testutil.CreateUser(t, env.usrRepo, "Nosy", "nosypeer", "nosy@test.cd", user.StudentRoles, true)

	rec := env.request(t, http.MethodGet, "/v1/certificates/"+cert.CertificateID, env.token(t, env.student), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/v1/certificates/"+cert.CertificateID, env.token(t, other), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodGet, "/v1/certificates/CERT-NOPE", env.token(t, env.admin), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_listStudentCertificates(t *testing.T) {
	env := setup(t)
	env.issueCertificate(t)
	other := testutil.CreateUser(t, env.usrRepo, "Nosy", "nosypeer", "nosy@test.cd", user.StudentRoles, true)

	rec := env.request(t, http.MethodGet, "/v1/students/"+env.student.ID+"/certificates", env.token(t, env.student), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var details []certificate.Detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Len(t, details, 1)

	rec = env.request(t, http.MethodGet, "/v1/students/"+env.student.ID+"/certificates", env.token(t, other), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_revokeCertificate(t *testing.T) {
	env := setup(t)
	cert := env.issueCertificate(t)

	rec := env.request(t, http.MethodPost, "/v1/certificates/"+cert.CertificateID+"/revoke", env.token(t, env.student), `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/certificates/"+cert.CertificateID+"/revoke", env.token(t, env.admin), `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var revoked certificate.Certificate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &revoked))
	assert.True(t, revoked.IsRevoked)
	assert.Equal(t, certificate.DefaultRevokedReason, revoked.RevokedReason.String)
}

func TestAPI_badges(t *testing.T) {
	env := setup(t)

	body := `{"name":"High Achiever","icon":"medal","criteria":"assessment_score","threshold":2,"min_score":70}`
	rec := env.request(t, http.MethodPost, "/v1/badges", env.token(t, env.student), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/badges", env.token(t, env.admin), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// duplicate name fails validation
	rec = env.request(t, http.MethodPost, "/v1/badges", env.token(t, env.admin), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown criteria fails validation
	rec = env.request(t, http.MethodPost, "/v1/badges", env.token(t, env.admin),
		`{"name":"Weird","icon":"x","criteria":"vibes"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// secret badges are hidden from non-admins
	testutil.CreateBadge(t, env.bdgRepo, badge.Badge{
		Name: "Hidden Gem", Icon: "gem", Criteria: badge.CriteriaCourseCompletion, Threshold: 1,
		IsSecret: true, IsActive: true,
	})

	rec = env.request(t, http.MethodGet, "/v1/badges", env.token(t, env.student), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var visible []badge.Badge
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
	assert.Len(t, visible, 1)

	rec = env.request(t, http.MethodGet, "/v1/badges", env.token(t, env.admin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []badge.Badge
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestAPI_evaluateBadges(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	testutil.CreateBadge(t, env.bdgRepo, badge.Badge{
		Name: "First Step", Icon: "step", Criteria: badge.CriteriaCourseCompletion, Threshold: 1,
		IsActive: true,
	})
	require.NoError(t, env.usrRepo.AddCompletedCourse(ctx, env.student.ID, "crs-1"))

	rec := env.request(t, http.MethodPost, "/v1/users/"+env.student.ID+"/badges/evaluate", env.token(t, env.student), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/users/"+env.student.ID+"/badges/evaluate", env.token(t, env.admin), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var earned []badge.Badge
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &earned))
	assert.Len(t, earned, 1)

	// idempotent
	rec = env.request(t, http.MethodPost, "/v1/users/"+env.student.ID+"/badges/evaluate", env.token(t, env.admin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	earned = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &earned))
	assert.Len(t, earned, 0)

	rec = env.request(t, http.MethodPost, "/v1/users/nope/badges/evaluate", env.token(t, env.admin), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
