package client

import (
	"context"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/sirupsen/logrus"
)

// Balance returns the balance of our wallet and resynchronises the debit
// counter of our actor.
func (c *Client) Balance(ctx context.Context) (transfers.Token, error) {
	pk := c.PublicKey()
	resp, err := c.query(ctx, messaging.DataQuery{GetBalance: &pk})
	if err != nil {
		return 0, err
	}
	if resp.Balance == nil {
		return 0, common.NewError(common.InvalidMessage, "balance response without balance")
	}
	c.actor.SetNextDebit(resp.NextDebit)
	return *resp.Balance, nil
}

// BalanceOf returns the balance of any wallet.
func (c *Client) BalanceOf(ctx context.Context, pk keys.PublicKey) (transfers.Token, error) {
	resp, err := c.query(ctx, messaging.DataQuery{GetBalance: &pk})
	if err != nil {
		return 0, err
	}
	if resp.Balance == nil {
		return 0, common.NewError(common.InvalidMessage, "balance response without balance")
	}
	return *resp.Balance, nil
}

// History returns the agreed events of our wallet.
func (c *Client) History(ctx context.Context) ([]transfers.ReplicaEvent, error) {
	pk := c.PublicKey()
	resp, err := c.query(ctx, messaging.DataQuery{GetHistory: &pk})
	if err != nil {
		return nil, err
	}
	return resp.History, nil
}

// Transfer moves amount from our wallet to recipient's. The debit is
// validated by the replicas of our wallet, the combined proof is registered
// with them and the credit is propagated to the recipient's replicas.
func (c *Client) Transfer(ctx context.Context, amount transfers.Token, recipient keys.PublicKey, msg string) (transfers.CreditAgreementProof, error) {
	if amount == 0 {
		return transfers.CreditAgreementProof{}, common.NewError(common.InvalidAmount, "cannot transfer 0")
	}
	if recipient == c.PublicKey() {
		return transfers.CreditAgreementProof{}, common.NewError(common.InvalidOperation, "cannot transfer to self")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.Balance(ctx); err != nil {
		return transfers.CreditAgreementProof{}, err
	}

	signed, err := c.actor.Transfer(amount, recipient, msg)
	if err != nil {
		return transfers.CreditAgreementProof{}, err
	}

	logger := c.logger.WithFields(logrus.Fields{
		"amount":    amount,
		"recipient": recipient,
		"counter":   signed.Debit.Debit.ID.Counter,
	})

	proof, err := c.validate(ctx, signed)
	if err != nil {
		c.actor.Abort()
		logger.WithError(err).Debug("Transfer not validated")
		return transfers.CreditAgreementProof{}, err
	}

	if _, err := c.cmd(ctx, messaging.DataCmd{Transfer: &messaging.TransferCmd{Register: proof}}); err != nil {
		c.actor.Abort()
		logger.WithError(err).Debug("Transfer not registered")
		return transfers.CreditAgreementProof{}, err
	}
	c.actor.Registered()

	credit := proof.CreditProof()
	// The replicas of our wallet propagate the credit as well; this only
	// speeds it up.
	if _, err := c.cmd(ctx, messaging.DataCmd{Transfer: &messaging.TransferCmd{Propagate: &credit}}); err != nil {
		logger.WithError(err).Debug("Propagating credit")
	}

	logger.Debug("Transfer registered")
	return credit, nil
}

// validate collects the validations of the replicas of our wallet until the
// actor can combine them into a proof.
func (c *Client) validate(ctx context.Context, signed transfers.SignedTransfer) (*transfers.TransferAgreementProof, error) {
	cmd := messaging.DataCmd{Transfer: &messaging.TransferCmd{Validate: &signed}}
	req, err := c.open(ctx, cmd.DstName(), messaging.ServiceMsg{Cmd: &cmd})
	if err != nil {
		return nil, err
	}
	defer c.close(req)

	// Once more elders refused than can be spared, no proof can be formed.
	maxFailures := len(req.sap.Elders) - (req.sap.PublicKeySet.Threshold + 1)
	var firstErr error
	failures := 0

	for {
		select {
		case resp := <-req.responses:
			if err := responseErr(resp); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				failures++
				if failures > maxFailures {
					return nil, firstErr
				}
				continue
			}
			if resp.CmdAck == nil || resp.CmdAck.Validated == nil {
				continue
			}
			proof, err := c.actor.ReceiveValidation(*resp.CmdAck.Validated)
			if err != nil {
				c.logger.WithError(err).Debug("Dropping validation")
				continue
			}
			if proof != nil {
				return proof, nil
			}
		case <-ctx.Done():
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, common.NewError(common.Timeout, "validating transfer: %v", ctx.Err())
		}
	}
}
