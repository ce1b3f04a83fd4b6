package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/elimuhq/darasa/core"
	"github.com/elimuhq/darasa/core/badge"
	"github.com/elimuhq/darasa/core/certificate"
	"github.com/elimuhq/darasa/core/course"
	"github.com/elimuhq/darasa/core/user"
	emailsvc "github.com/elimuhq/darasa/services/email"
	rendersvc "github.com/elimuhq/darasa/services/renderer"
	"github.com/elimuhq/darasa/storage/database"
	sqlxdb "github.com/elimuhq/darasa/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	badge.InitValidators(validate, translator)

	usrRepo := sqlxdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)
	crsSvc := course.NewService(sqlxdb.NewCourseRepository(db))
	certSvc := certificate.NewService(
		sqlxdb.NewCertificateRepository(db), usrSvc, crsSvc,
		rendersvc.NewStaticRenderer(""), emailsvc.NewConsoleService(conf), conf,
	)
	bdgSvc := badge.NewService(sqlxdb.NewBadgeRepository(db), usrRepo)

	// start CLI
	cli := commandLine{
		db:       db,
		certSvc:  certSvc,
		bdgSvc:   bdgSvc,
		validate: validate,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
