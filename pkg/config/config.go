package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	version "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/treeshare/treeshare/pkg/errors"
)

// SupportedConfigVersion is the config format this binary understands.
// Configs that omit the field are treated as this version; configs newer
// than it are refused.
const SupportedConfigVersion = "1.0.0"

// parseConfigErrTemplate is a template for when the CLI fails to parse yaml
// configuration files. This can happen for a multitude of reasons, including
// extraneous fields and incorrect field types. However, the yaml library
// constructs errors in a way that loses context, and so we can only pass the
// error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

type configInterface interface {
	getVersion() string
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return fmt.Sprintf("The configuration file %q was written for a newer "+
		"release (format %q, supported up to %q). Upgrade this binary "+
		"before using it.", err.path, err.actual, err.exp)
}

func parseConfig(path string, config configInterface) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if isPathNotFoundError(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	err = yaml.Unmarshal(configBytes, config)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if err := checkVersion(path, config.getVersion()); err != nil {
		return err
	}

	// Do a strict unmarshal to check for any extra fields. We do a non-strict
	// unmarshal first so that we can catch version errors before erroring on
	// extra fields.
	err = yaml.UnmarshalStrict(configBytes, config, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}

func checkVersion(path, got string) error {
	if got == "" {
		return nil
	}

	configVersion, err := version.NewVersion(got)
	if err != nil {
		return errors.WithContext(err, "parse config version")
	}
	supported := version.Must(version.NewVersion(SupportedConfigVersion))
	if configVersion.GreaterThan(supported) {
		return incompatibleVersionError{path, SupportedConfigVersion, got}
	}
	return nil
}

func isPathNotFoundError(err error) bool {
	if fileErr, ok := err.(*os.PathError); ok &&
		fileErr.Op == "open" && fileErr.Err.Error() == "no such file or directory" {
		return true
	}
	return os.IsNotExist(err)
}
