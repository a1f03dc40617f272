package dialogue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/Kaikei/common/redact"
	"github.com/bdobrica/Kaikei/internal/kaikei/gateway"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
	"github.com/bdobrica/Kaikei/internal/kaikei/session"
	"github.com/bdobrica/Kaikei/internal/kaikei/wallet"
)

const (
	msgDenied         = "You are not authorized to use this bot."
	msgUnknown        = "Sorry, I did not understand that. Try another phrasing or type /help."
	msgClarify        = "I could not make out the amount or the recipient. Please try again, for example: \"sende 5 ada an addr_test1...\"."
	msgNothingPending = "Nothing is pending."
	msgDiscarded      = "Transfer cancelled."
	msgVoiceFailed    = "Could not understand your voice message."
	msgChoiceStale    = "That choice is no longer available."
	msgInternal       = "Something went wrong on my side. Please try again."
	msgWalletPrompt   = "What should the new wallet be called? Letters, digits, `-` and `_` are allowed. Reply `cancel` to stop."
	msgWalletCancel   = "Wallet creation cancelled."
	msgTxUsage        = "Usage: `/tx <transaction id>`"

	labelConfirm      = "Confirm"
	labelCancel       = "Cancel"
	labelCreateWallet = "Create wallet"
)

const msgWelcome = `**Welcome to Kaikei!**

I run ADA transfers and balance checks from chat and voice messages.

Things you can say:
- "Wie viel ADA habe ich?"
- "Sende 5 ADA an addr_test1..."
- "Hilfe"

Type /help for the full command list.`

const msgHelp = `**What I understand**

1. Check your balance
   "Wie viel ADA habe ich?" / "How much ADA do I have?"

2. Send ADA
   "Sende 10 ADA an addr_test1..." / "Send 5 ADA to addr_test1..."
   Every transfer waits for your confirmation.

**Commands**
/balance: balance of your default wallet
/network [testnet|mainnet]: show or switch the network
/wallets: list your wallets on the current network
/newwallet [name]: create a wallet
/tx <id>: transaction status
/cancel: drop whatever is pending

Text and voice messages both work.`

func formatADA(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func msgNeedFundingSource(n ledger.Network) string {
	return fmt.Sprintf("You have no wallet on **%s** yet. Create one with `/newwallet <name>` or the button below.", n)
}

func msgConfirm(a session.StagedAction) string {
	return fmt.Sprintf("Send **%s ADA** to `%s`?\n\nNetwork: **%s**\nFrom wallet: **%s**\n\nReply `ja` to confirm. Any other reply cancels the transfer.",
		formatADA(a.Amount), a.Recipient, a.Network, a.WalletName)
}

func msgSent(a session.StagedAction, rcpt ledger.Receipt, traceID string) string {
	return fmt.Sprintf("✅ **Transfer submitted**\n\nAmount: **%s ADA**\nRecipient: `%s`\nTransaction: `%s`\n\n_Network: %s_\n\n(trace: %s)",
		formatADA(a.Amount), a.Recipient, rcpt.TxRef, rcpt.Network, traceID)
}

func msgSendFailed(a session.StagedAction, err error, traceID string) string {
	return fmt.Sprintf("❌ Transfer failed: %s. Nothing was sent.\n\n(trace: %s)", describeLedgerError(err, a.Network), traceID)
}

func msgBalance(r gateway.BalanceReport) string {
	return fmt.Sprintf("Your balance on **%s**:\n\n🏦 **%.6f ADA**\nWallet: **%s**\nAddress: `%s`",
		r.Balance.Network, r.Balance.ADA(), r.Source.Name, r.Source.Address)
}

func msgBalanceFailed(n ledger.Network, err error, traceID string) string {
	return fmt.Sprintf("❌ Could not fetch your balance: %s.\n\n(trace: %s)", describeLedgerError(err, n), traceID)
}

func msgBusy(s session.Session) string {
	switch s.State {
	case session.AwaitingConfirmation:
		return "A transfer is waiting for your confirmation. Reply `ja` to send it, anything else to cancel, or use /cancel."
	case session.AwaitingWalletName:
		return "I am waiting for the name of your new wallet. Send a name, or `cancel`."
	}
	return msgNothingPending
}

func msgExpired(prev session.Session) string {
	if prev.State == session.AwaitingWalletName {
		return "⚠️ Your wallet creation timed out and was cancelled."
	}
	if prev.Pending != nil {
		return fmt.Sprintf("⚠️ Your pending transfer of %s ADA timed out and was cancelled.", formatADA(prev.Pending.Amount))
	}
	return "⚠️ Your pending action timed out and was cancelled."
}

func msgNetworkCurrent(n ledger.Network) string {
	return fmt.Sprintf("Current network: **%s**. Pick one below or use `/network <testnet|mainnet>`.", n)
}

func msgNetworkSwitched(n ledger.Network, pending *session.StagedAction) string {
	msg := fmt.Sprintf("Network switched to **%s**.", n)
	if pending != nil && pending.Network != n {
		msg += fmt.Sprintf(" Your pending transfer stays on **%s**.", pending.Network)
	}
	return msg
}

func msgUnknownNetwork(arg string) string {
	names := make([]string, len(ledger.Networks))
	for i, n := range ledger.Networks {
		names[i] = string(n)
	}
	return fmt.Sprintf("Unknown network %q. Choose one of: %s.", arg, strings.Join(names, ", "))
}

func msgUnknownCommand(name string) string {
	return fmt.Sprintf("Unknown command `/%s`. Type /help for the command list.", name)
}

func msgWallets(n ledger.Network, sources []wallet.FundingSource) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Wallets on %s (%d)**\n\n", n, len(sources)))
	for i, src := range sources {
		marker := ""
		if i == 0 {
			marker = " (default)"
		}
		sb.WriteString(fmt.Sprintf("- **%s**%s: `%s`\n", src.Name, marker, redact.Address(src.Address)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func msgWalletCreated(src wallet.FundingSource) string {
	return fmt.Sprintf("✅ Wallet **%s** created on **%s**.\n\nAddress: `%s`", src.Name, src.Network, src.Address)
}

func msgWalletFailed(name string, err error) string {
	if errors.Is(err, wallet.ErrDuplicateName) {
		return fmt.Sprintf("❌ You already have a wallet called **%s** on this network.", wallet.SanitizeName(name))
	}
	return "❌ Could not create the wallet. Please try again."
}

func msgTxStatus(st ledger.TxStatus) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Transaction** `%s`\n\nNetwork: **%s**\nState: **%s**", st.TxRef, st.Network, st.State))
	if st.Block != "" {
		sb.WriteString(fmt.Sprintf("\nBlock: %d (`%s`)", st.BlockHeight, st.Block))
	}
	if st.Confirmations > 0 {
		sb.WriteString(fmt.Sprintf("\nConfirmations: %d", st.Confirmations))
	}
	if !st.SubmittedAt.IsZero() {
		sb.WriteString("\nSubmitted: " + st.SubmittedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return sb.String()
}

func msgTxFailed(n ledger.Network, ref string, err error) string {
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Sprintf("No transaction `%s` found on **%s**.", ref, n)
	}
	return fmt.Sprintf("❌ Could not look up the transaction: %s.", describeLedgerError(err, n))
}

func describeLedgerError(err error, n ledger.Network) string {
	switch {
	case errors.Is(err, gateway.ErrInsufficientFunds):
		return "insufficient funds"
	case errors.Is(err, gateway.ErrInvalidRecipient):
		return fmt.Sprintf("the recipient is not a valid %s address", n)
	case errors.Is(err, gateway.ErrNetworkMismatch):
		return "the wallet belongs to another network"
	case errors.Is(err, gateway.ErrUnknownWallet):
		return "the funding wallet no longer exists"
	case errors.Is(err, gateway.ErrInvalidAmount):
		return "the amount is not valid"
	case errors.Is(err, ledger.ErrNotConfigured):
		return fmt.Sprintf("the %s network is not configured", n)
	}
	return "the ledger service is unavailable, please try again later"
}
