package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Error codes for configuration failures.
const (
	ErrCodeRead        = "E_CONFIG_READ"
	ErrCodeFormat      = "E_CONFIG_FORMAT"
	ErrCodeParse       = "E_CONFIG_PARSE"
	ErrCodeInvalid     = "E_CONFIG_INVALID"
	ErrCodeDuplicate   = "E_CONFIG_DUPLICATE"
	ErrCodeBadInterval = "E_CONFIG_INTERVAL"
)

// Error is a configuration failure with a machine-readable code.
type Error struct {
	Code    string
	Message string
	// Path locates the offending element, e.g. "shops[0].machines[1].name".
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInvalid reports whether err contains a validation failure (bad or
// duplicate names, unparsable interval). Uses errors.As to handle wrapped
// and joined errors.
func IsInvalid(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		switch ce.Code {
		case ErrCodeInvalid, ErrCodeDuplicate, ErrCodeBadInterval:
			return true
		}
	}
	return false
}

// Load reads, decodes and validates a plant file. The format is chosen by
// extension: .yaml/.yml or .cue.
func Load(path string) (*Plant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Message: "cannot read plant file", Path: path, Err: err}
	}
	p, err := Decode(data, path)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode parses data as the format implied by name's extension.
func Decode(data []byte, name string) (*Plant, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return decodeYAML(data, name)
	case ".cue":
		return decodeCUE(data, name)
	default:
		return nil, &Error{
			Code:    ErrCodeFormat,
			Message: fmt.Sprintf("unsupported plant file extension %q (want .yaml, .yml or .cue)", filepath.Ext(name)),
			Path:    name,
		}
	}
}

func decodeYAML(data []byte, name string) (*Plant, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plant
	if err := dec.Decode(&p); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: "invalid YAML", Path: name, Err: err}
	}
	return &p, nil
}

func decodeCUE(data []byte, name string) (*Plant, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(name))
	if err := value.Err(); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: "invalid CUE", Path: name, Err: err}
	}

	// A file may define the plant at the top level or under "plant".
	if nested := value.LookupPath(cue.ParsePath("plant")); nested.Exists() {
		value = nested
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: "plant value is not concrete", Path: name, Err: err}
	}

	var p Plant
	if err := value.Decode(&p); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: "cannot decode CUE plant", Path: name, Err: err}
	}
	return &p, nil
}

// Validate checks structural rules and returns every violation joined.
//
// Rules: plant, shop, machine names and sensor keys are non-empty;
// machine names are unique across the plant; sensor keys are unique per
// machine; Interval parses and is positive.
func (p *Plant) Validate() error {
	var errs []error
	invalid := func(path, msg string) {
		errs = append(errs, &Error{Code: ErrCodeInvalid, Message: msg, Path: path})
	}

	if strings.TrimSpace(p.Name) == "" {
		invalid("name", "plant name is required")
	}
	if p.Interval != "" {
		d, err := p.MonitorInterval()
		if err != nil || d <= 0 {
			errs = append(errs, &Error{
				Code:    ErrCodeBadInterval,
				Message: fmt.Sprintf("interval %q must be a positive duration", p.Interval),
				Path:    "interval",
				Err:     err,
			})
		}
	}

	seen := map[string]string{}
	for si, shop := range p.Shops {
		shopPath := fmt.Sprintf("shops[%d]", si)
		if strings.TrimSpace(shop.Name) == "" {
			invalid(shopPath+".name", "shop name is required")
		}
		for mi, m := range shop.Machines {
			mPath := fmt.Sprintf("%s.machines[%d]", shopPath, mi)
			if strings.TrimSpace(m.Name) == "" {
				invalid(mPath+".name", "machine name is required")
				continue
			}
			if prev, dup := seen[m.Name]; dup {
				errs = append(errs, &Error{
					Code:    ErrCodeDuplicate,
					Message: fmt.Sprintf("machine %q already defined at %s", m.Name, prev),
					Path:    mPath + ".name",
				})
			} else {
				seen[m.Name] = mPath
			}

			keys := map[string]bool{}
			for ki, s := range m.Sensors {
				sPath := fmt.Sprintf("%s.sensors[%d]", mPath, ki)
				if strings.TrimSpace(s.Key) == "" {
					invalid(sPath+".key", "sensor key is required")
					continue
				}
				if keys[s.Key] {
					errs = append(errs, &Error{
						Code:    ErrCodeDuplicate,
						Message: fmt.Sprintf("sensor %q defined twice on %s", s.Key, m.Name),
						Path:    sPath + ".key",
					})
				}
				keys[s.Key] = true
			}
		}
	}
	return errors.Join(errs...)
}
