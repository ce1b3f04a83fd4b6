package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) revokeCertificate(certificateID, reason string) error {
	cert, err := cli.certSvc.Revoke(context.Background(), certificateID, reason)
	if err != nil {
		return err
	}
	fmt.Printf("certificate %s revoked: %s\n", cert.CertificateID, cert.RevokedReason.String)
	return nil
}
