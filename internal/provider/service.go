package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

var serviceProperties = []string{
	"Id", "Description", "LoadState", "ActiveState", "SubState", "UnitFileState",
	"MainPID", "ActiveEnterTimestamp", "MemoryCurrent", "Result",
}

// ServiceProvider reads the unit state of the application's service
type ServiceProvider struct{}

func (ServiceProvider) Type() app.ProviderType { return app.ProviderService }

func (ServiceProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	name := t.Service.ServiceName
	if name == "" {
		return w.Update(ctx, func(s *app.State) { s.Service = nil })
	}

	cmd := fmt.Sprintf("systemctl show %s --no-pager --property=%s",
		transport.Quote(name), strings.Join(serviceProperties, ","))
	res, err := t.Run.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() && !strings.Contains(res.Output, "=") {
		return app.LoadFailed("systemctl show %s: exit %d: %s", name, res.ExitCode, res.Trimmed())
	}

	info := ParseServiceShow(name, res.Output)
	return w.Update(ctx, func(s *app.State) { s.Service = info })
}

// ParseServiceShow maps `systemctl show` key=value output onto ServiceInfo
func ParseServiceShow(name, output string) *app.ServiceInfo {
	info := &app.ServiceInfo{
		Name:       name,
		Properties: make(map[string]string),
	}
	for _, line := range transport.SplitLines(output) {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		info.Properties[key] = value

		switch key {
		case "ActiveState":
			info.ActiveState = value
		case "SubState":
			info.SubState = value
		case "LoadState":
			info.LoadState = value
		case "UnitFileState":
			info.Enabled = value
		case "MainPID":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				info.MainPID = pid
			}
		case "ActiveEnterTimestamp":
			if ts, ok := parseSystemdTime(value); ok {
				info.Since = ts
			}
		case "MemoryCurrent":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
				info.Memory = HumanBytes(n)
			}
		}
	}
	info.Running = info.ActiveState == "active" && info.SubState == "running"
	return info
}

// parseSystemdTime parses "Mon 2024-03-18 10:21:07 UTC"
func parseSystemdTime(v string) (time.Time, bool) {
	if v == "" || v == "n/a" {
		return time.Time{}, false
	}
	for _, layout := range []string{"Mon 2006-01-02 15:04:05 MST", "2006-01-02 15:04:05 MST"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
