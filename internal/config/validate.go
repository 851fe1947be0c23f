package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// interfaceAddrs lists the addresses assigned to this host.
var interfaceAddrs = net.InterfaceAddrs

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("local_ip", func(fl validator.FieldLevel) bool {
		return isLocalIP(fl.Field().String())
	})
	return v
}

// isLocalIP accepts the wildcard address, loopback addresses, and addresses
// assigned to a local interface.
func isLocalIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	if ip.IsUnspecified() || ip.IsLoopback() {
		return true
	}
	addrs, err := interfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
			return true
		}
	}
	return false
}

// InvalidError lists every problem found in a Config.
type InvalidError struct {
	Problems []string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

func (e *InvalidError) Unwrap() error { return ErrInvalidConfig }

// ValidateHub checks the settings used by the hub command.
func ValidateHub(cfg Config) error {
	return check(validate.StructPartial(cfg, hubFields...))
}

// ValidateClient checks the settings used by the client command.
func ValidateClient(cfg Config) error {
	return check(validate.StructPartial(cfg, clientFields...))
}

func check(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return &InvalidError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "ip":
		return fmt.Sprintf("%s must be an IP address, got %q", field, fe.Value())
	case "local_ip":
		return fmt.Sprintf("%s must be an address of this host, got %q", field, fe.Value())
	case "hostname|ip":
		return fmt.Sprintf("%s must be a host name or IP address, got %q", field, fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be positive, got %v", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s is invalid (%s), got %v", field, fe.Tag(), fe.Value())
	}
}
