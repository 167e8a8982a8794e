// Package hwinfo queries machine information through dmidecode and disk
// health through smartctl.
package hwinfo

import (
	"context"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DMI string keywords understood by dmidecode -s
const (
	SystemManufacturer = "system-manufacturer"
	SystemProductName  = "system-product-name"
	BaseboardProduct   = "baseboard-product-name"
	BIOSVersion        = "bios-version"
)

const cacheSize = 64

// Cache memoises dmidecode answers for the lifetime of one run. It is
// created by the caller and handed to whatever needs machine information.
type Cache struct {
	exec execx.Runner
	dmi  *lru.Cache[string, string]
}

// NewCache creates an empty Cache
func NewCache(runner execx.Runner) *Cache {
	c, err := lru.New[string, string](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Cache{exec: runner, dmi: c}
}

// DMI returns the value of a dmidecode string keyword
func (c *Cache) DMI(ctx context.Context, key string) (string, error) {
	if v, ok := c.dmi.Get(key); ok {
		return v, nil
	}
	out, err := c.exec.Run(ctx, execx.Command("dmidecode", "-s", key))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrHardware, "cannot read DMI %s", key)
	}
	v := strings.TrimSpace(string(out))
	c.dmi.Add(key, v)
	return v, nil
}

// Machine describes the machine from its DMI strings
func (c *Cache) Machine(ctx context.Context) (string, error) {
	var parts []string
	for _, key := range []string{SystemManufacturer, SystemProductName} {
		v, err := c.DMI(ctx, key)
		if err != nil {
			return "", err
		}
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " "), nil
}

// HealthCheck asks smartctl for the overall health of disk
func (c *Cache) HealthCheck(ctx context.Context, disk string) error {
	out, err := c.exec.Run(ctx, execx.Command("smartctl", "-H", disk))
	text := string(out)
	if strings.Contains(text, "PASSED") || strings.Contains(text, "SMART Health Status: OK") {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrHardware, "health check of %s failed", disk)
	}
	return errors.Newf(errors.ErrHardware, "disk %s reports bad health", disk).
		WithDetail("output", text)
}
