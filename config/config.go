package config

import (
	"errors"
	"flag"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/feedpulse/feedpulse/mail"
)

type Config struct {
	Addr           string
	DBUrl          string
	TokenSecret    string
	TokenTTL       time.Duration
	MarkerSecret   string
	TrustForwarded bool
	ResetURL       string
	SMTP           mail.SMTPSettings
	Debug          bool
}

func ParseFlags() (cfg Config, err error) {
	var host string
	flag.StringVar(&host, "host", "0.0.0.0", "listen host name (default 0.0.0.0)")
	var port uint
	flag.UintVar(&port, "port", 80, "listen port number (default 80)")
	flag.StringVar(&cfg.DBUrl, "db-url", "feedpulse.sqlite", "path to SQLite3 DB file (default feedpulse.sqlite)")
	flag.StringVar(&cfg.TokenSecret, "token-secret", "", "secret key for token encryption and decryption")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", 120, "token TTL in seconds (default 120)")
	flag.StringVar(&cfg.MarkerSecret, "marker-secret", "", "secret key for submission markers (defaults to -token-secret)")
	flag.BoolVar(&cfg.TrustForwarded, "trust-forwarded", false, "trust X-Forwarded-For headers from a reverse proxy")
	flag.StringVar(&cfg.ResetURL, "reset-url", "", "base URL of the password reset page")
	flag.StringVar(&cfg.SMTP.Host, "smtp-host", "", "SMTP relay host (empty disables outbound mail)")
	flag.IntVar(&cfg.SMTP.Port, "smtp-port", 587, "SMTP relay port (default 587)")
	flag.StringVar(&cfg.SMTP.Username, "smtp-user", "", "SMTP relay username")
	flag.StringVar(&cfg.SMTP.Password, "smtp-pass", "", "SMTP relay password")
	flag.StringVar(&cfg.SMTP.From, "smtp-from", "", "sender address for outbound mail")
	flag.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
	}
	if cfg.MarkerSecret == "" {
		cfg.MarkerSecret = cfg.TokenSecret
	}
	if cfg.ResetURL == "" {
		cfg.ResetURL = cfg.Url() + "/reset.html"
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
