package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/elimuhq/darasa/core/badge"
	"github.com/elimuhq/darasa/core/certificate"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sql.DB
	certSvc  certificate.Service
	bdgSvc   badge.Service
	validate *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (goose commands)")
	fmt.Println("  addbadge -name NAME -icon ICON -criteria CRITERIA [OPTIONS] - add a badge to the catalog")
	fmt.Println("  revokecert -id CERTIFICATE_ID [-reason REASON] - revoke a certificate")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addBadgeCmd := flag.NewFlagSet("addbadge", flag.ExitOnError)
	addBadgeName := addBadgeCmd.String("name", "", "The badge's unique display name.")
	addBadgeDescription := addBadgeCmd.String("description", "", "An optional description.")
	addBadgeIcon := addBadgeCmd.String("icon", "", "The badge's icon.")
	addBadgeCriteria := addBadgeCmd.String("criteria", "", "Qualification criteria: course_completion|assessment_score|streak|community|custom.")
	addBadgeThreshold := addBadgeCmd.Int("threshold", 0, "Minimum count required to qualify.")
	addBadgeMinScore := addBadgeCmd.Float64("minscore", 0, "Minimum passing percentage for assessment_score badges.")
	addBadgeCourse := addBadgeCmd.String("course", "", "Restrict the badge to a single course ID.")
	addBadgeSecret := addBadgeCmd.Bool("secret", false, "Hide the badge until it is earned.")

	revokeCertCmd := flag.NewFlagSet("revokecert", flag.ExitOnError)
	revokeCertID := revokeCertCmd.String("id", "", "The certificate's public ID (CERT-...).")
	revokeCertReason := revokeCertCmd.String("reason", "", "An optional revocation reason.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addbadge":
		if err := addBadgeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addBadgeName == "" || *addBadgeIcon == "" || *addBadgeCriteria == "" {
			addBadgeCmd.Usage()
			return errHelp
		}
		return cli.addBadge(badge.NewBadge{
			Name:        *addBadgeName,
			Description: *addBadgeDescription,
			Icon:        *addBadgeIcon,
			Criteria:    *addBadgeCriteria,
			Threshold:   *addBadgeThreshold,
			MinScore:    *addBadgeMinScore,
			Course:      *addBadgeCourse,
			IsSecret:    *addBadgeSecret,
		})
	case "revokecert":
		if err := revokeCertCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *revokeCertID == "" {
			revokeCertCmd.Usage()
			return errHelp
		}
		return cli.revokeCertificate(*revokeCertID, *revokeCertReason)
	default:
		cli.printUsage()
		return errHelp
	}
}
