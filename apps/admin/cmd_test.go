package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/mail"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/elimuhq/darasa/core"
	"github.com/elimuhq/darasa/core/badge"
	"github.com/elimuhq/darasa/core/certificate"
	"github.com/elimuhq/darasa/core/course"
	"github.com/elimuhq/darasa/core/user"
	emailsvc "github.com/elimuhq/darasa/services/email"
	rendersvc "github.com/elimuhq/darasa/services/renderer"
	dummydb "github.com/elimuhq/darasa/storage/database/dummy"
	testutil "github.com/elimuhq/darasa/tests"
)

var (
	usrRepo user.Repository
	crsRepo course.Repository
	bdgRepo badge.Repository
)

func setup(t *testing.T) *commandLine {
	t.Helper()

	conf := &core.Config{
		AppName:          "Darasa",
		BaseURL:          "http://localhost:8000",
		DefaultFromEmail: mail.Address{Name: "Darasa", Address: "noreply@localhost"},
	}

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	usrRepo = dummydb.NewUserRepository(db)
	crsRepo = dummydb.NewCourseRepository(db)
	bdgRepo = dummydb.NewBadgeRepository(db)

	usrSvc := user.NewService(usrRepo)
	crsSvc := course.NewService(crsRepo)
	certSvc := certificate.NewService(
		dummydb.NewCertificateRepository(db), usrSvc, crsSvc,
		rendersvc.NewStaticRenderer(""), emailsvc.NewConsoleServiceMock(conf), conf,
	)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	badge.InitValidators(validate, translator)

	// start CLI
	return &commandLine{
		certSvc:  certSvc,
		bdgSvc:   badge.NewService(bdgRepo, usrRepo),
		validate: validate,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "badge", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addBadge(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addbadge"}, wantErr: errHelp},
		{name: "missing icon", args: []string{"addbadge", "-name", "First Step", "-criteria", "course_completion"}, wantErr: errHelp},
		{
			name:       "unknown criteria",
			args:       []string{"addbadge", "-name", "Weird", "-icon", "x", "-criteria", "vibes"},
			wantErrStr: "validation",
		},
		{name: "ok", args: []string{"addbadge", "-name", "First Step", "-icon", "step", "-criteria", "course_completion", "-threshold", "1"}},
		{
			name:       "duplicate name",
			args:       []string{"addbadge", "-name", "First Step", "-icon", "step", "-criteria", "course_completion", "-threshold", "1"},
			wantErrStr: "validation",
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr == "validation":
				if err == nil {
					t.Fatal("cli.run() expected a validation error")
				}
				cause := errors.Cause(err)
				if _, ok := cause.(*core.ValidationError); !ok {
					if _, ok = cause.(validator.ValidationErrors); !ok {
						t.Errorf("cli.run() error = %v, want validation error", err)
					}
				}
			default:
				if err != nil {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
				badges, qErr := bdgRepo.QueryBadges(context.Background(), false)
				if qErr != nil {
					t.Fatalf("QueryBadges() failed: %v", qErr)
				}
				if len(badges) != 1 {
					t.Errorf("catalog holds %d badges, want 1", len(badges))
				}
			}
		})
	}
}

func Test_commandLine_revokeCertificate(t *testing.T) {
	cli := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Sia", "siabonga", "sia@test.cd", user.StudentRoles, true)
	instructor := testutil.CreateUser(t, usrRepo, "Prof", "promosala", "prof@test.cd", user.InstructorRoles, true)
	crs := testutil.CreateCourse(t, crsRepo, "Intro to Lingala", instructor.ID)
	enr := testutil.CreateEnrollment(t, crsRepo, student.ID, crs.ID, course.StatusCompleted)

	cert, err := cli.certSvc.Issue(context.Background(), certificate.NewCertificate{
		Student:    student.ID,
		Course:     crs.ID,
		Enrollment: enr.ID,
	})
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"revokecert"}, wantErr: errHelp},
		{name: "unknown certificate", args: []string{"revokecert", "-id", "CERT-NOPE"}, wantErr: certificate.ErrNotFound},
		{name: "ok with reason", args: []string{"revokecert", "-id", cert.CertificateID, "-reason", "cheating"}},
		{name: "re-revoke is a no-op", args: []string{"revokecert", "-id", cert.CertificateID}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("cli.run() unexpected error = %v", err)
			}
			refreshed, gErr := cli.certSvc.Revoke(context.Background(), cert.CertificateID, "ignored")
			if gErr != nil {
				t.Fatalf("Revoke() failed: %v", gErr)
			}
			if !refreshed.IsRevoked {
				t.Error("certificate not revoked")
			}
			if refreshed.RevokedReason.String != "cheating" {
				t.Errorf("RevokedReason = %s, want the first reason preserved", refreshed.RevokedReason.String)
			}
		})
	}
}
