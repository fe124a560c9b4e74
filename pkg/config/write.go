package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	goyaml "github.com/go-yaml/yaml"
	"github.com/goccy/go-yaml"
	"github.com/xaionaro-go/datacounter"
)

var _ io.WriterTo = (*Config)(nil)
var _ yaml.BytesMarshaler = (*Config)(nil)

func (cfg Config) WriteTo(
	w io.Writer,
) (int64, error) {
	b, err := cfg.MarshalYAML()
	if err != nil {
		return 0, err
	}

	counter := datacounter.NewWriterCounter(w)
	_, err = io.Copy(counter, bytes.NewReader(b))
	return int64(counter.Count()), err
}

func (cfg Config) MarshalYAML() ([]byte, error) {
	b, err := yaml.Marshal((config)(cfg))
	if err != nil {
		return nil, fmt.Errorf("unable to serialize data %#+v: %w", cfg, err)
	}

	// goccy's encoder maps the structures correctly, but its indentation
	// is unstable, so the result is re-serialized with go-yaml.
	m := map[string]any{}
	err = goyaml.Unmarshal(b, &m)
	if err != nil {
		return nil, fmt.Errorf("unable to unserialize data %#+v: %w", cfg, err)
	}

	b, err = goyaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("unable to re-serialize data %#+v: %w", cfg, err)
	}

	return b, nil
}

func WriteToPath(
	ctx context.Context,
	cfgPath string,
	cfg Config,
) (_err error) {
	pathNew := cfgPath + ".new"
	f, err := os.OpenFile(pathNew, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0640)
	if err != nil {
		return fmt.Errorf("unable to open the config file '%s': %w", pathNew, err)
	}
	defer func() {
		if _err == nil {
			return
		}
		if err := os.Remove(pathNew); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Errorf(ctx, "unable to remove '%s': %v", pathNew, err)
		}
	}()
	_, err = cfg.WriteTo(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("unable to write the config to file '%s': %w", pathNew, err)
	}
	err = os.Rename(pathNew, cfgPath)
	if err != nil {
		return fmt.Errorf("cannot move '%s' to '%s': %w", pathNew, cfgPath, err)
	}
	logger.Infof(ctx, "wrote the config to '%s'", cfgPath)
	return nil
}
