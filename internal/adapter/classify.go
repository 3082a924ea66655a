package adapter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the classifier cares about.
const (
	codeInvalidPassword         = "28P01"
	codeInvalidAuthorization    = "28000"
	codeInsufficientPrivilege   = "42501"
	codeUndefinedTable          = "42P01"
	codeUndefinedColumn         = "42703"
	codeObjectNotInPrerequisite = "55000"
	codeQueryCanceled           = "57014"
	classConnectionException    = "08"
)

// Classify maps a driver or network error onto the probe failure taxonomy.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindNone
	}

	var connErr *models.ConnectivityError
	if errors.As(err, &connErr) {
		return connErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ErrorKindTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeInvalidPassword || pgErr.Code == codeInvalidAuthorization:
			return models.ErrorKindAuthFailure
		case pgErr.Code == codeQueryCanceled:
			return models.ErrorKindTimeout
		case strings.HasPrefix(pgErr.Code, classConnectionException):
			return models.ErrorKindNetworkUnreachable
		}
		return models.ErrorKindUnknown
	}

	if isTLSError(err) {
		return models.ErrorKindSSL
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return models.ErrorKindNetworkUnreachable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return models.ErrorKindTimeout
	case strings.Contains(msg, "password authentication failed"):
		return models.ErrorKindAuthFailure
	case strings.Contains(msg, "tls") || strings.Contains(msg, "ssl"):
		return models.ErrorKindSSL
	}

	return models.ErrorKindUnknown
}

// Wrap classifies err and returns it as a ConnectivityError.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var connErr *models.ConnectivityError
	if errors.As(err, &connErr) {
		return err
	}
	return &models.ConnectivityError{Kind: Classify(err), Err: err}
}

// IsCapabilityUnavailable reports whether err means the optional statement
// statistics capability is absent on the target: the view is missing, has an
// incompatible shape, the library is not preloaded, or the role may not read it.
func IsCapabilityUnavailable(err error) bool {
	if errors.Is(err, models.ErrCapabilityUnavailable) {
		return true
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case codeUndefinedTable, codeUndefinedColumn, codeInsufficientPrivilege, codeObjectNotInPrerequisite:
		return true
	}
	return false
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	var verifyErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var certErr x509.CertificateInvalidError

	if errors.As(err, &recordErr) || errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &certErr) {
		return true
	}

	// pgconn reports a server without TLS support as a plain error
	return strings.Contains(strings.ToLower(err.Error()), "server refused tls connection")
}
