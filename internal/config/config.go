package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
	"github.com/ligun0805/asset-rescue/internal/chain"
	"github.com/ligun0805/asset-rescue/internal/fees"
)

const (
	DefaultRPCURL        = "https://ethereum.publicnode.com"
	DefaultRelayURL      = "https://relay.flashbots.net"
	DefaultTransfersFile = "transfers.toml"
	DefaultExplorerTxURL = "https://etherscan.io/tx/"
)

// Settings keeps all configuration options read from the environment.
type Settings struct {
	RPCURL             string
	WSURL              string
	ChainID            int64
	RelayURL           string
	FlashbotsAuthPKHex string
	SafePrivateKeyHex  string
	FromPrivateKeyHex  string
	Recipient          string
	TransfersFile      string

	PaddingGwei    decimal.Decimal
	EscalationGwei decimal.Decimal
	FeeMode        fees.Mode
	FeeSource      chain.FeeSource

	MaxAttempts        int
	Backoff            bundlecore.BackoffKind
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	AttemptTimeout     time.Duration
	MaxSigningFailures int
	Simulate           bool
	HeadBuffer         int

	RPCRateLimit     float64
	HeadPollInterval time.Duration

	LogLevel      string
	LogFormat     string
	ExplorerTxURL string
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
// Every malformed value is reported; missing values fall back to defaults.
func Load() (Settings, error) {
	var errs *multierror.Error
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	bad := func(keys []string, s string, err error) {
		errs = multierror.Append(errs, fmt.Errorf("%s=%q: %w", keys[len(keys)-1], s, err))
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			bad(keys, s, err)
			return def
		}
		return n
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			bad(keys, s, err)
			return def
		}
		return n
	}
	getFloat := func(keys []string, def float64) float64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			bad(keys, s, err)
			return def
		}
		return n
	}
	getBool := func(keys []string, def bool) bool {
		s := strings.ToLower(get(keys, ""))
		if s == "" {
			return def
		}
		return s == "1" || s == "true" || s == "yes" || s == "on"
	}
	getDuration := func(keys []string, def time.Duration) time.Duration {
		s := get(keys, "")
		if s == "" {
			return def
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			bad(keys, s, err)
			return def
		}
		return d
	}
	getDecimal := func(keys []string, def decimal.Decimal) decimal.Decimal {
		s := get(keys, "")
		if s == "" {
			return def
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			bad(keys, s, err)
			return def
		}
		return d
	}

	st := Settings{}
	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, DefaultRPCURL)
	st.WSURL = get([]string{"ws_url", "WS_URL"}, "")
	st.ChainID = getInt64([]string{"chain_id", "CHAIN_ID"}, 0)
	st.RelayURL = get([]string{"relay_url", "RELAY_URL"}, DefaultRelayURL)
	st.FlashbotsAuthPKHex = get([]string{"flashbots_auth_pk", "FLASHBOTS_AUTH_PK"}, "")
	st.SafePrivateKeyHex = get([]string{"safe_private_key", "PRIVATE_KEY_SAFE_WALLET", "SAFE_PRIVATE_KEY"}, "")
	st.FromPrivateKeyHex = get([]string{"from_private_key", "PRIVATE_KEY_HACK_WALLET", "COMPROMISED_PRIVATE_KEY", "FROM_PRIVATE_KEY"}, "")
	st.Recipient = get([]string{"recipient", "RECIPIENT"}, "")
	st.TransfersFile = get([]string{"transfers_file", "TRANSFERS_FILE"}, DefaultTransfersFile)

	st.PaddingGwei = getDecimal([]string{"padding_gwei", "PADDING_GWEI"}, fees.DefaultPadding)
	st.EscalationGwei = getDecimal([]string{"escalation_gwei", "ESCALATION_GWEI"}, decimal.Zero)
	if st.PaddingGwei.IsNegative() {
		bad([]string{"PADDING_GWEI"}, st.PaddingGwei.String(), errNegative)
	}
	if st.EscalationGwei.IsNegative() {
		bad([]string{"ESCALATION_GWEI"}, st.EscalationGwei.String(), errNegative)
	}
	var err error
	feeMode := get([]string{"fee_mode", "FEE_MODE"}, "single")
	if st.FeeMode, err = fees.ParseMode(feeMode); err != nil {
		bad([]string{"FEE_MODE"}, feeMode, err)
	}
	feeSource := get([]string{"fee_source", "FEE_SOURCE"}, "gasprice")
	if st.FeeSource, err = chain.ParseFeeSource(feeSource); err != nil {
		bad([]string{"FEE_SOURCE"}, feeSource, err)
	}

	def := bundlecore.DefaultPolicy()
	st.MaxAttempts = getInt([]string{"max_attempts", "MAX_ATTEMPTS"}, def.MaxAttempts)
	bo := get([]string{"backoff", "BACKOFF"}, "none")
	if st.Backoff, err = bundlecore.ParseBackoff(bo); err != nil {
		bad([]string{"BACKOFF"}, bo, err)
	}
	st.BackoffMin = getDuration([]string{"backoff_min", "BACKOFF_MIN"}, def.BackoffMin)
	st.BackoffMax = getDuration([]string{"backoff_max", "BACKOFF_MAX"}, def.BackoffMax)
	st.AttemptTimeout = getDuration([]string{"attempt_timeout", "ATTEMPT_TIMEOUT"}, def.AttemptTimeout)
	st.MaxSigningFailures = getInt([]string{"max_signing_failures", "MAX_SIGNING_FAILURES"}, def.MaxSigningFailures)
	st.Simulate = getBool([]string{"simulate", "SIMULATE"}, def.Simulate)
	st.HeadBuffer = getInt([]string{"head_buffer", "HEAD_BUFFER"}, def.HeadBuffer)

	st.RPCRateLimit = getFloat([]string{"rpc_rate_limit", "RPC_RATE_LIMIT"}, 10)
	st.HeadPollInterval = getDuration([]string{"head_poll_interval", "HEAD_POLL_INTERVAL"}, 2*time.Second)

	st.LogLevel = get([]string{"log_level", "LOG_LEVEL"}, "info")
	st.LogFormat = get([]string{"log_format", "LOG_FORMAT"}, "text")
	st.ExplorerTxURL = get([]string{"explorer_tx_url", "EXPLORER_TX_URL"}, DefaultExplorerTxURL)

	if st.BackoffMin > st.BackoffMax {
		errs = multierror.Append(errs, fmt.Errorf("BACKOFF_MIN %s exceeds BACKOFF_MAX %s", st.BackoffMin, st.BackoffMax))
	}
	if st.MaxAttempts < 0 {
		bad([]string{"MAX_ATTEMPTS"}, strconv.Itoa(st.MaxAttempts), errNegative)
	}
	return st, errs.ErrorOrNil()
}

// Policy is the submission policy described by the settings.
func (s Settings) Policy() bundlecore.Policy {
	return bundlecore.Policy{
		MaxAttempts:        s.MaxAttempts,
		Backoff:            s.Backoff,
		BackoffMin:         s.BackoffMin,
		BackoffMax:         s.BackoffMax,
		AttemptTimeout:     s.AttemptTimeout,
		MaxSigningFailures: s.MaxSigningFailures,
		Simulate:           s.Simulate,
		HeadBuffer:         s.HeadBuffer,
	}
}

// FeeModel is the fee model described by the settings.
func (s Settings) FeeModel() *fees.Model {
	m := fees.NewModel(s.PaddingGwei)
	m.Escalation = s.EscalationGwei
	m.Mode = s.FeeMode
	return m
}

// HeadURL is the endpoint used for head notifications: the websocket URL when set.
func (s Settings) HeadURL() string {
	if s.WSURL != "" {
		return s.WSURL
	}
	return s.RPCURL
}
