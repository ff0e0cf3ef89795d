package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/everstacklabs/compass/internal/config"
)

func TestQueryFromFlags(t *testing.T) {
	cfg := &config.Config{Region: "South", Interface: "public"}

	tests := []struct {
		name       string
		args       []string
		wantRegion string
		wantIface  string
		wantFilter map[string]string
	}{
		{"config region", []string{"--type", "compute"}, "South", "", nil},
		{"region flag", []string{"--type", "compute", "--region", "East"}, "East", "", nil},
		{"region filter skips config region", []string{"--type", "compute", "--filter", "region:North"}, "", "", map[string]string{"region": "North"}},
		{"interface flag", []string{"--type", "compute", "--interface", "admin"}, "South", "admin", nil},
		{"filter value with comma", []string{"--type", "compute", "--filter", "url:http://a/?x=1,2"}, "South", "", map[string]string{"url": "http://a/?x=1,2"}},
		{"repeated filters", []string{"--type", "compute", "--filter", "tenantId:1", "--filter", "versionId=2"}, "South", "", map[string]string{"tenantId": "1", "versionId": "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "resolve"}
			addQueryFlags(cmd)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("parsing flags: %v", err)
			}

			q, err := queryFromFlags(cmd, cfg)
			if err != nil {
				t.Fatalf("queryFromFlags failed: %v", err)
			}
			if q.ServiceType != "compute" {
				t.Errorf("type = %q", q.ServiceType)
			}
			if q.Region != tt.wantRegion {
				t.Errorf("region = %q, want %q", q.Region, tt.wantRegion)
			}
			if q.Interface != tt.wantIface {
				t.Errorf("interface = %q, want %q", q.Interface, tt.wantIface)
			}
			if len(q.Filters) != len(tt.wantFilter) {
				t.Fatalf("filters = %v, want %v", q.Filters, tt.wantFilter)
			}
			for k, v := range tt.wantFilter {
				if q.Filters[k] != v {
					t.Errorf("filter %s = %q, want %q", k, q.Filters[k], v)
				}
			}
		})
	}
}
