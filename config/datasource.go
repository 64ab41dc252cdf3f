package config

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	fieldvalidator "github.com/go-playground/validator/v10"

	"github.com/hzhu212/data-monitor/model"
)

type rawDatasourceConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Charset  string `mapstructure:"charset"`
}

// ParseDatasources decodes every section of raw (already cascaded through
// CascadeTemplates) into a named model.DatasourceConfig, validating that
// port falls within 1-65535.
func ParseDatasources(raw map[string]map[string]string) (map[string]*model.DatasourceConfig, error) {
	out := make(map[string]*model.DatasourceConfig, len(raw))
	for name, kv := range raw {
		var rc rawDatasourceConfig
		if err := mapstructure.WeakDecode(toAnyMap(kv), &rc); err != nil {
			return nil, fmt.Errorf("decoding datasource %q: %w", name, err)
		}
		if err := structValidator.Struct(rc); err != nil {
			var verrs fieldvalidator.ValidationErrors
			if errors.As(err, &verrs) {
				fe := verrs[0]
				return nil, fmt.Errorf("datasource %q: field %q failed %q validation (got %v)", name, fe.Field(), fe.Tag(), fe.Value())
			}
			return nil, fmt.Errorf("datasource %q: %w", name, err)
		}
		out[name] = &model.DatasourceConfig{
			Name:     name,
			Host:     rc.Host,
			Port:     rc.Port,
			User:     rc.User,
			Password: rc.Password,
			Database: rc.Database,
			Charset:  rc.Charset,
		}
	}
	return out, nil
}

func toAnyMap(kv map[string]string) map[string]any {
	out := make(map[string]any, len(kv))
	for k, v := range kv {
		out[k] = v
	}
	return out
}
