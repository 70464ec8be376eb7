package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	adminToken string
	Version    = "dev"
)

type License struct {
	LicenseKey   string     `json:"license_key"`
	DurationType string     `json:"duration_type"`
	IsActive     bool       `json:"is_active"`
	IsBanned     bool       `json:"is_banned"`
	BanReason    string     `json:"ban_reason"`
	Mode         string     `json:"mode"`
	BoundHWID    string     `json:"bound_hwid"`
	SessionHWID  string     `json:"session_hwid"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    string     `json:"expires_at"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	Note         string     `json:"note"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "keywarden",
		Short: "Keywarden - license administration",
		Long:  "Issue, inspect, and manage hardware-locked license keys",
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Keywarden server URL")
	rootCmd.PersistentFlags().StringVarP(&adminToken, "token", "t", os.Getenv("KEYWARDEN_ADMIN_TOKEN"), "Admin bearer token")

	rootCmd.AddCommand(
		statusCmd(),
		licensesCmd(),
		showCmd(),
		logsCmd(),
		generateCmd(),
		noteCmd(),
		resetHWIDCmd(),
		banCmd(),
		unbanCmd(),
		deactivateCmd(),
		reactivateCmd(),
		extendCmd(),
		sharedModeCmd(),
		clearSessionCmd(),
		deleteCmd(),
		denylistCmd(),
		denylistUnbanCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show license population summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			licenses, err := fetchLicenses("")
			if err != nil {
				return err
			}

			var active, banned, shared int
			for _, l := range licenses {
				if l.IsBanned {
					banned++
					continue
				}
				if l.IsActive {
					active++
				}
				if l.Mode == "shared" {
					shared++
				}
			}

			fmt.Printf("Keywarden Status\n")
			fmt.Printf("================\n\n")
			fmt.Printf("Total licenses:   %d\n", len(licenses))
			fmt.Printf("Active:           %d\n", active)
			fmt.Printf("Banned:           %d\n", banned)
			fmt.Printf("Shared-terminal:  %d\n", shared)
			return nil
		},
	}
}

func licensesCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "licenses",
		Short: "List licenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			licenses, err := fetchLicenses(state)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tDURATION\tMODE\tACTIVE\tBANNED\tEXPIRES\tNOTE")
			for _, l := range licenses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\t%s\n",
					l.LicenseKey, l.DurationType, l.Mode, l.IsActive, l.IsBanned, l.ExpiresAt, l.Note)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Filter: active, inactive, banned, shared")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Show one license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var l License
			if err := doJSON(http.MethodGet, "/admin/licenses/"+args[0], nil, &l); err != nil {
				return err
			}

			fmt.Printf("Key:        %s\n", l.LicenseKey)
			fmt.Printf("Duration:   %s\n", l.DurationType)
			fmt.Printf("Mode:       %s\n", l.Mode)
			fmt.Printf("Active:     %v\n", l.IsActive)
			fmt.Printf("Banned:     %v", l.IsBanned)
			if l.BanReason != "" {
				fmt.Printf(" (%s)", l.BanReason)
			}
			fmt.Println()
			fmt.Printf("Bound HWID: %s\n", emptyDash(l.BoundHWID))
			fmt.Printf("Session:    %s\n", emptyDash(l.SessionHWID))
			fmt.Printf("Created:    %s\n", l.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Expires:    %s\n", l.ExpiresAt)
			if l.LastUsedAt != nil {
				fmt.Printf("Last used:  %s\n", l.LastUsedAt.Format(time.RFC3339))
			}
			if l.Note != "" {
				fmt.Printf("Note:       %s\n", l.Note)
			}
			return nil
		},
	}
}

func logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs KEY",
		Short: "Show a license's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Logs []struct {
					At     time.Time `json:"at"`
					Kind   string    `json:"kind"`
					Detail string    `json:"detail"`
				} `json:"logs"`
			}
			if err := doJSON(http.MethodGet, "/admin/licenses/"+args[0]+"/logs", nil, &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tEVENT\tDETAIL")
			for _, e := range resp.Logs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.At.Format(time.RFC3339), e.Kind, e.Detail)
			}
			return w.Flush()
		},
	}
}

func generateCmd() *cobra.Command {
	var durationType, note, apiKey string
	var warnet bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a new license key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]any{
				"duration_type": durationType,
				"is_warnet":     warnet,
				"note":          note,
			})
			req, err := http.NewRequest(http.MethodPost, serverURL+"/api/generate-key", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-API-Key", apiKey)

			var resp struct {
				LicenseKey string `json:"license_key"`
			}
			if err := send(req, &resp); err != nil {
				return err
			}
			fmt.Println(resp.LicenseKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&durationType, "duration", "lifetime", "Duration type: lifetime, demo_1min, trial_6hours, 2weeks, 1month")
	cmd.Flags().BoolVar(&warnet, "warnet", false, "Issue in shared-terminal mode")
	cmd.Flags().StringVar(&note, "note", "", "Free-text note")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("KEYWARDEN_API_KEY"), "Key-generation API key")
	return cmd
}

func noteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note KEY TEXT",
		Short: "Set a license note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/note", map[string]string{"note": args[1]}, nil)
		},
	}
}

func resetHWIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-hwid KEY",
		Short: "Clear the hardware binding (remaining duration carries over)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/reset-hwid", nil, nil)
		},
	}
}

func banCmd() *cobra.Command {
	var reason string
	var banHWID bool
	cmd := &cobra.Command{
		Use:   "ban KEY",
		Short: "Ban a license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/ban",
				map[string]any{"reason": reason, "ban_hwid": banHWID}, nil)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Ban reason")
	cmd.Flags().BoolVar(&banHWID, "ban-hwid", false, "Also add the bound hardware to the global denylist")
	return cmd
}

func unbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unban KEY",
		Short: "Lift a license ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/unban", nil, nil)
		},
	}
}

func deactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate KEY",
		Short: "Deactivate a license without banning it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/deactivate", nil, nil)
		},
	}
}

func reactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate KEY",
		Short: "Reactivate a deactivated license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/reactivate", nil, nil)
		},
	}
}

func extendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extend KEY DAYS",
		Short: "Extend a license by N days",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid day count %q", args[1])
			}
			var resp struct {
				ExpiresAt string `json:"expires_at"`
			}
			if err := doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/extend", map[string]int{"days": days}, &resp); err != nil {
				return err
			}
			fmt.Printf("Expires: %s\n", resp.ExpiresAt)
			return nil
		},
	}
}

func sharedModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shared-mode KEY on|off",
		Short: "Toggle shared-terminal mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/shared-mode", map[string]bool{"enabled": enabled}, nil)
		},
	}
}

func clearSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-session KEY",
		Short: "Force-drop a live shared-terminal session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/admin/licenses/"+args[0]+"/clear-session", nil, nil)
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a license record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodDelete, "/admin/licenses/"+args[0], nil, nil)
		},
	}
}

func denylistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "denylist",
		Short: "List globally banned hardware fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			var bans []struct {
				HWID       string    `json:"hwid"`
				Reason     string    `json:"reason"`
				LicenseKey string    `json:"license_key"`
				BannedAt   time.Time `json:"banned_at"`
			}
			if err := doJSON(http.MethodGet, "/admin/denylist", nil, &bans); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HWID\tREASON\tLICENSE\tBANNED")
			for _, b := range bans {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.HWID, b.Reason, b.LicenseKey, b.BannedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func denylistUnbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "denylist-unban HASH",
		Short: "Remove a fingerprint from the global denylist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodDelete, "/admin/denylist/"+args[0], nil, nil)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}

func fetchLicenses(state string) ([]License, error) {
	path := "/admin/licenses"
	if state != "" {
		path += "?state=" + state
	}
	var licenses []License
	if err := doJSON(http.MethodGet, path, nil, &licenses); err != nil {
		return nil, err
	}
	return licenses, nil
}

// doJSON issues an authenticated admin request, decoding into out when given.
func doJSON(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)

	return send(req, out)
}

func send(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s (%d)", errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
