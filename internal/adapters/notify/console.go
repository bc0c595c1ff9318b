package notify

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
)

// ConsoleConfig fija cómo se muestran precios e importes.
type ConsoleConfig struct {
	// Units es el número de decimales para precios e importes.
	Units int32

	Base   domain.Asset // asset0
	Target domain.Asset // asset1

	ConcentratedName string
	ClassicName      string
}

// Console implementa ports.Reporter.
type Console struct {
	out io.Writer
	cfg ConsoleConfig
	mu  sync.Mutex
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(cfg ConsoleConfig) *Console {
	return NewConsoleWriter(os.Stdout, cfg)
}

// NewConsoleWriter crea un reporter sobre w (tests).
func NewConsoleWriter(w io.Writer, cfg ConsoleConfig) *Console {
	if cfg.Units <= 0 {
		cfg.Units = 6
	}
	if cfg.ConcentratedName == "" {
		cfg.ConcentratedName = domain.KindConcentrated.String()
	}
	if cfg.ClassicName == "" {
		cfg.ClassicName = domain.KindClassic.String()
	}
	return &Console{out: w, cfg: cfg}
}

// Startup imprime los pools resueltos y el bloque actual.
func (c *Console) Startup(pools []domain.PoolHandle, block uint64, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := "REHEARSAL (settlement calls skipped)"
	if live {
		mode = "LIVE"
	}
	fmt.Fprintf(c.out, "\n=== %s / %s arbitrage | %s ===\n", c.cfg.Target, c.cfg.Base, mode)

	table := tablewriter.NewWriter(c.out)
	table.Header("Venue", "Kind", "Pool", "Fee")
	for _, p := range pools {
		fee := "-"
		if p.Kind == domain.KindConcentrated {
			fee = fmt.Sprintf("%.2f%%", float64(p.Fee)/10_000)
		}
		table.Append(p.Name, p.Kind.String(), p.Address.Hex(), fee)
	}
	table.Render()

	fmt.Fprintf(c.out, "  Current block: %d\n\n", block)
}

// Prices imprime el precio de ambos venues y la divergencia.
func (c *Console) Prices(rec domain.CycleRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[%s] swap on %s, checking prices (block %d)\n",
		rec.StartedAt.Local().Format("15:04:05"), c.venueName(rec.Trigger.Venue), rec.BlockNumber)

	pair := c.cfg.Target.String() + "/" + c.cfg.Base.String()
	table := tablewriter.NewWriter(c.out)
	table.Header("Venue", "Pair", "Price")
	table.Append(c.cfg.ClassicName, pair, rec.PriceB.StringFixed(c.cfg.Units))
	table.Append(c.cfg.ConcentratedName, pair, rec.PriceA.StringFixed(c.cfg.Units))
	table.Render()

	fmt.Fprintf(c.out, "  Percentage difference: %s%%\n", rec.Divergence.StringFixed(2))
}

// Direction imprime la dirección resuelta.
func (c *Console) Direction(dir domain.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "  Potential arbitrage: buy on %s, sell on %s\n",
		c.venueName(dir.Buy), c.venueName(dir.Sell))
}

// Estimate imprime la simulación del round trip y el balance proyectado.
func (c *Console) Estimate(v domain.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	base, target := c.cfg.Base, c.cfg.Target
	places := c.cfg.Units

	table := tablewriter.NewWriter(c.out)
	table.Header("Step", "Amount")
	table.Append(fmt.Sprintf("Probe (%s)", target), domain.FormatUnits(v.TrialAmount, target.Decimals, places))
	table.Append(fmt.Sprintf("%s needed on %s", base, c.venueName(v.Direction.Buy)), domain.FormatUnits(v.AmountIn, base.Decimals, places))
	table.Append(fmt.Sprintf("%s bought on %s", target, c.venueName(v.Direction.Buy)), domain.FormatUnits(v.Bought, target.Decimals, places))
	table.Append(fmt.Sprintf("%s returned on %s", base, c.venueName(v.Direction.Sell)), domain.FormatUnits(v.AmountOut, base.Decimals, places))
	table.Render()

	if v.AmountIn != nil && v.AmountOut != nil {
		sheet := tablewriter.NewWriter(c.out)
		sheet.Header(base.String()+" before", base.String()+" after", "Gained/Lost", "Gas cost", "Net after gas")
		sheet.Append(
			domain.FormatUnits(v.AmountIn, base.Decimals, places),
			domain.FormatUnits(v.AmountOut, base.Decimals, places),
			domain.FormatUnits(v.Net, base.Decimals, places),
			domain.FormatUnits(v.GasCost, base.Decimals, places),
			domain.FormatUnits(v.NetAfterGas, base.Decimals, places),
		)
		sheet.Render()
	}

	if v.Profitable {
		fmt.Fprintln(c.out, "  Estimate: PROFITABLE")
		return
	}
	fmt.Fprintf(c.out, "  Estimate: not profitable (%s)\n", v.Reason)
}

// Trade imprime los balances antes/después de la ejecución.
func (c *Console) Trade(r domain.TradeReceipt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.cfg.Base
	places := c.cfg.Units

	switch {
	case r.Rehearsal:
		fmt.Fprintln(c.out, "  Trade: REHEARSAL, no transaction sent")
	case r.Success:
		fmt.Fprintf(c.out, "  Trade: CONFIRMED tx %s block %d gas %d\n",
			r.Settlement.TxHash.Hex(), r.Settlement.BlockNumber, r.Settlement.GasUsed)
	default:
		fmt.Fprintf(c.out, "  Trade: FAILED %s\n", r.Error)
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Account", "Asset", "Before", "After", "Change")
	for _, acct := range []struct {
		role string
		d    domain.BalanceDelta
	}{
		{"target", r.Target},
		{"spender", r.Spender},
	} {
		who := acct.role + " " + shortAddr(acct.d.Account.Hex())
		table.Append(who, base.String(),
			domain.FormatUnits(acct.d.BaseBefore, base.Decimals, places),
			domain.FormatUnits(acct.d.BaseAfter, base.Decimals, places),
			domain.FormatUnits(acct.d.BaseDelta, base.Decimals, places),
		)
		table.Append(who, "native (gas)",
			domain.FormatUnits(acct.d.NativeBefore, domain.NativeDecimals, places),
			domain.FormatUnits(acct.d.NativeAfter, domain.NativeDecimals, places),
			negate(domain.FormatUnits(acct.d.NativeSpent, domain.NativeDecimals, places)),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  Net gain: %s %s\n",
		domain.FormatUnits(r.NetGain(base.Decimals), base.Decimals, places), base)
}

// Outcome cierra el ciclo con una línea de resultado.
func (c *Console) Outcome(rec domain.CycleRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] cycle %s → %s", time.Now().Format("15:04:05"), shortID(rec.ID), rec.Outcome)
	if rec.Outcome != domain.OutcomeReadFailed {
		fmt.Fprintf(&sb, " | div %s%%", rec.Divergence.StringFixed(2))
	}
	if v := rec.Verdict; v != nil && v.NetAfterGas != nil {
		fmt.Fprintf(&sb, " | net %s %s", domain.FormatUnits(v.NetAfterGas, c.cfg.Base.Decimals, c.cfg.Units), c.cfg.Base)
	}
	if rec.Err != "" {
		fmt.Fprintf(&sb, " | err: %s", rec.Err)
	}
	fmt.Fprintf(&sb, " | %s", rec.Duration.Round(time.Millisecond))

	fmt.Fprintln(c.out, sb.String())
}

// PrintReport imprime el resumen de ciclos guardados.
func (c *Console) PrintReport(stats domain.CycleStats, recent []domain.CycleRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stats.Total == 0 {
		fmt.Fprintln(c.out, "\n  No cycles recorded yet. Run the bot first.")
		return
	}

	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  CYCLE REPORT\n")
	fmt.Fprintf(c.out, "  %s to %s\n",
		stats.FirstAt.Local().Format("2006-01-02 15:04"),
		stats.LastAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(c.out, "========================================================\n\n")

	outcomes := make([]string, 0, len(stats.ByOutcome))
	for o := range stats.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Outcome", "Cycles", "Share")
	for _, o := range outcomes {
		n := stats.ByOutcome[domain.Outcome(o)]
		tbl.Append(o, fmt.Sprintf("%d", n), fmt.Sprintf("%.1f%%", float64(n)/float64(stats.Total)*100))
	}
	tbl.Render()

	fmt.Fprintf(c.out, "\n  Total cycles:        %d\n", stats.Total)
	fmt.Fprintf(c.out, "  Max |divergence|:    %s%%\n", stats.MaxDivergence.StringFixed(2))

	if len(recent) == 0 {
		fmt.Fprintln(c.out)
		return
	}

	fmt.Fprintf(c.out, "\n  --- RECENT ---\n")
	rt := tablewriter.NewWriter(c.out)
	rt.Header("Started", "Cycle", "Trigger", "Div %", "Route", "Outcome", "Tx")
	for _, rec := range recent {
		tx := "-"
		if rec.Receipt != nil && !rec.Receipt.Rehearsal {
			tx = shortAddr(rec.Receipt.Settlement.TxHash.Hex())
		}
		rt.Append(
			rec.StartedAt.Local().Format("01-02 15:04:05"),
			rec.ID,
			c.venueName(rec.Trigger.Venue),
			rec.Divergence.StringFixed(2),
			rec.Route.String(),
			string(rec.Outcome),
			tx,
		)
	}
	rt.Render()
	fmt.Fprintln(c.out)
}

// PrintCycle imprime el detalle de un ciclo guardado. Los importes van en
// unidades mínimas del token (el modo report no conoce los decimales).
func (c *Console) PrintCycle(rec domain.CycleRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== cycle %s ===\n", rec.ID)

	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")
	table.Append("Started", rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	table.Append("Duration", rec.Duration.Round(time.Millisecond).String())
	table.Append("Trigger", c.venueName(rec.Trigger.Venue))
	if rec.Trigger.TxHash != (common.Hash{}) {
		table.Append("Trigger tx", rec.Trigger.TxHash.Hex())
	}
	table.Append("Block", fmt.Sprintf("%d", rec.BlockNumber))
	table.Append("Price "+c.cfg.ConcentratedName, rec.PriceA.StringFixed(c.cfg.Units))
	table.Append("Price "+c.cfg.ClassicName, rec.PriceB.StringFixed(c.cfg.Units))
	table.Append("Divergence", rec.Divergence.StringFixed(2)+"%")
	table.Append("Route", rec.Route.String())
	table.Append("Outcome", string(rec.Outcome))
	if rec.Err != "" {
		table.Append("Error", rec.Err)
	}
	if v := rec.Verdict; v != nil {
		table.Append("Trial amount", rawUnits(v.TrialAmount))
		table.Append("Amount in", rawUnits(v.AmountIn))
		table.Append("Amount out", rawUnits(v.AmountOut))
		table.Append("Gas cost", rawUnits(v.GasCost))
		table.Append("Net after gas", rawUnits(v.NetAfterGas))
		if v.Reason != "" {
			table.Append("Reason", v.Reason)
		}
	}
	table.Render()

	r := rec.Receipt
	if r == nil {
		fmt.Fprintln(c.out)
		return
	}

	status := "FAILED"
	switch {
	case r.Rehearsal:
		status = "REHEARSAL"
	case r.Success:
		status = "CONFIRMED"
	}
	fmt.Fprintf(c.out, "  Trade: %s %s on %s → %s", status, rawUnits(r.Amount),
		c.venueName(r.Direction.Buy), c.venueName(r.Direction.Sell))
	if r.Settlement.TxHash != (common.Hash{}) {
		fmt.Fprintf(c.out, " | tx %s block %d gas %d", r.Settlement.TxHash.Hex(), r.Settlement.BlockNumber, r.Settlement.GasUsed)
	}
	if r.Error != "" {
		fmt.Fprintf(c.out, " | err: %s", r.Error)
	}
	fmt.Fprintln(c.out)

	bal := tablewriter.NewWriter(c.out)
	bal.Header("Account", "Asset", "Before", "After")
	for _, acct := range []struct {
		role string
		d    domain.BalanceDelta
	}{
		{"target", r.Target},
		{"spender", r.Spender},
	} {
		who := acct.role + " " + shortAddr(acct.d.Account.Hex())
		bal.Append(who, "base", rawUnits(acct.d.BaseBefore), rawUnits(acct.d.BaseAfter))
		bal.Append(who, "native", rawUnits(acct.d.NativeBefore), rawUnits(acct.d.NativeAfter))
	}
	bal.Render()
	fmt.Fprintln(c.out)
}

// --- helpers ---

func rawUnits(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func (c *Console) venueName(k domain.VenueKind) string {
	if k == domain.KindConcentrated {
		return c.cfg.ConcentratedName
	}
	return c.cfg.ClassicName
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortAddr(hex string) string {
	if len(hex) <= 14 {
		return hex
	}
	return hex[:8] + "…" + hex[len(hex)-4:]
}

func negate(s string) string {
	switch {
	case s == "-" || strings.Trim(s, "0.") == "":
		return s
	case strings.HasPrefix(s, "-"):
		return s[1:]
	default:
		return "-" + s
	}
}
