package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/auth"
)

func runLicenseIssue(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("license issue", flag.ExitOnError)
	server, apiKey := commonFlags(fs)
	months := fs.Int("months", 0, "License duration in months (1-120)")
	note := fs.String("note", "", "Optional note stored with the token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *months < 1 || *months > 120 {
		return fmt.Errorf("--months must be between 1 and 120")
	}
	c, err := newClient(*server, *apiKey)
	if err != nil {
		return err
	}

	var resp dto.LicenseResponse
	req := dto.IssueLicenseRequest{Months: *months, Note: *note}
	if err := c.do(http.MethodPost, "/api/v1/admin/licenses", req, http.StatusCreated, &resp); err != nil {
		return err
	}

	fmt.Fprintln(w, "License issued!")
	fmt.Fprintf(w, "  Token:  %s\n", resp.Token)
	fmt.Fprintf(w, "  Months: %d\n", resp.Months)
	return nil
}

func runLicenseList(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("license list", flag.ExitOnError)
	server, apiKey := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := newClient(*server, *apiKey)
	if err != nil {
		return err
	}

	var resp dto.ListLicensesResponse
	if err := c.do(http.MethodGet, "/api/v1/admin/licenses", nil, http.StatusOK, &resp); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tMONTHS\tCREATED\tUSED BY")
	for _, l := range resp.Licenses {
		usedBy := "-"
		if l.IsUsed {
			usedBy = l.UsedByDomain
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", l.Token, l.Months, l.CreatedAt.Format("2006-01-02"), usedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d license(s)\n", resp.Count)
	return nil
}

func runServersList(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("servers list", flag.ExitOnError)
	server, apiKey := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := newClient(*server, *apiKey)
	if err != nil {
		return err
	}

	var resp dto.ListServersResponse
	if err := c.do(http.MethodGet, "/api/v1/admin/servers", nil, http.StatusOK, &resp); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOMAIN\tIP\tSTATUS\tEXPIRES")
	for _, s := range resp.Servers {
		expires := "never"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Domain, s.IP, s.Status, expires)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d server(s)\n", resp.Count)
	return nil
}

func runServersDelete(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("servers delete", flag.ExitOnError)
	server, apiKey := commonFlags(fs)
	id := fs.String("id", "", "Server record ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	c, err := newClient(*server, *apiKey)
	if err != nil {
		return err
	}

	if err := c.do(http.MethodDelete, "/api/v1/admin/servers/"+url.PathEscape(*id), nil, http.StatusOK, nil); err != nil {
		return err
	}
	fmt.Fprintf(w, "Server %s deleted\n", *id)
	return nil
}

func runDiagnose(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	server, apiKey := commonFlags(fs)
	id := fs.String("id", "", "Server record ID")
	kind := fs.String("kind", "traffic", "Diagnostic kind: traffic or speed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	c, err := newClient(*server, *apiKey)
	if err != nil {
		return err
	}

	var resp dto.DiagnoseResponse
	path := "/api/v1/admin/servers/" + url.PathEscape(*id) + "/diagnostics"
	if err := c.do(http.MethodPost, path, dto.DiagnoseRequest{Kind: *kind}, http.StatusOK, &resp); err != nil {
		return err
	}

	if resp.SpeedMbps != nil {
		fmt.Fprintf(w, "Download speed: %.2f Mbps\n", *resp.SpeedMbps)
		return nil
	}
	fmt.Fprintln(w, resp.Output)
	return nil
}

func runHashSecret(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("hash-secret", flag.ExitOnError)
	secret := fs.String("secret", "", "Admin secret to hash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		return fmt.Errorf("--secret is required")
	}
	hash, err := auth.HashSecret(*secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, hash)
	return nil
}
