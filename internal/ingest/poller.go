package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
)

// Poller runs the long-lived mailbox loop: connect, authenticate, select the
// folder, and repeatedly search for unseen messages. Connection-level
// failures tear the session down and reconnect with exponential backoff; a
// session that reaches a successful search resets the backoff.
type Poller struct {
	imapCfg   config.IMAPConfig
	ingestCfg config.IngestConfig
	service   *Service
	lease     *MailboxLease
	logger    *zap.Logger
}

// NewPoller constructs the poller. The lease may be nil when single-instance
// operation is guaranteed by deployment.
func NewPoller(imapCfg config.IMAPConfig, ingestCfg config.IngestConfig, service *Service, lease *MailboxLease, logger *zap.Logger) *Poller {
	return &Poller{
		imapCfg:   imapCfg,
		ingestCfg: ingestCfg,
		service:   service,
		lease:     lease,
		logger:    logger,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	backoff := p.ingestCfg.MinBackoff()
	for {
		if ctx.Err() != nil {
			return
		}
		if p.lease != nil {
			ok, err := p.lease.Acquire(ctx)
			if err != nil {
				p.logger.Warn("mailbox lease acquire failed", zap.Error(err))
			}
			if !ok {
				if !sleep(ctx, p.ingestCfg.PollInterval()) {
					return
				}
				continue
			}
		}

		established, err := p.session(ctx)
		if p.lease != nil {
			if releaseErr := p.lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
				p.logger.Warn("mailbox lease release failed", zap.Error(releaseErr))
			}
		}
		if ctx.Err() != nil {
			return
		}
		if established {
			backoff = p.ingestCfg.MinBackoff()
		}
		if err != nil {
			p.logger.Warn("mailbox session ended",
				zap.Duration("reconnect_in", backoff),
				zap.Error(err))
		}
		if !sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, p.ingestCfg.MaxBackoff())
	}
}

// PollOnce processes the currently available unseen messages and returns.
// Backs the one-shot ops mode.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	client, err := p.connect()
	if err != nil {
		return 0, err
	}
	defer client.Close()
	defer client.Logout()

	return p.pollCycle(ctx, client)
}

// session holds one connection open and polls on the configured interval.
// Returns whether at least one search succeeded.
func (p *Poller) session(ctx context.Context) (bool, error) {
	client, err := p.connect()
	if err != nil {
		return false, err
	}
	defer client.Close()
	defer client.Logout()

	established := false
	for {
		if _, err := p.pollCycle(ctx, client); err != nil {
			return established, err
		}
		established = true
		if p.lease != nil {
			if err := p.lease.Refresh(ctx); err != nil {
				p.logger.Warn("mailbox lease refresh failed", zap.Error(err))
			}
		}
		if !sleep(ctx, p.ingestCfg.PollInterval()) {
			return established, nil
		}
	}
}

func (p *Poller) connect() (*imapclient.Client, error) {
	var (
		client *imapclient.Client
		err    error
	)
	if p.imapCfg.UseSSL {
		client, err = imapclient.DialTLS(p.imapCfg.Addr(), nil)
	} else {
		client, err = imapclient.DialInsecure(p.imapCfg.Addr(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", p.imapCfg.Addr(), err)
	}
	if err := client.Login(p.imapCfg.Username, p.imapCfg.Password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := client.Select(p.imapCfg.Folder, nil).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap select %s: %w", p.imapCfg.Folder, err)
	}
	return client, nil
}

// pollCycle searches for unseen messages and ingests them one at a time. A
// message is flagged seen only after it was durably ingested; a transaction
// failure leaves the flag unset so the message retries on the next cycle.
func (p *Poller) pollCycle(ctx context.Context, client *imapclient.Client) (int, error) {
	data, err := client.Search(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("imap search: %w", err)
	}

	processed := 0
	for _, seq := range data.AllSeqNums() {
		if ctx.Err() != nil {
			return processed, nil
		}
		raw, err := p.fetchMessage(client, seq)
		if err != nil {
			return processed, err
		}
		if p.ingestRaw(ctx, raw, seq) {
			if err := p.markSeen(client, seq); err != nil {
				return processed, err
			}
		}
		processed++
	}
	return processed, nil
}

func (p *Poller) fetchMessage(client *imapclient.Client, seq uint32) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	cmd := client.Fetch(imap.SeqSetNum(seq), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("imap fetch: message %d not returned", seq)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	return buf.BodySection[section], nil
}

// ingestRaw reports whether the message may be marked seen. Parse failures
// count as processed (a poison message would otherwise loop forever);
// ingestion errors do not, so the transaction retry happens on the next poll.
func (p *Poller) ingestRaw(ctx context.Context, raw []byte, seq uint32) bool {
	in, err := ParseRaw(raw)
	if err != nil {
		p.logger.Error("inbound message unparseable, skipping",
			zap.Uint32("seq", seq),
			zap.Error(err))
		return true
	}
	result, err := p.service.Ingest(ctx, in)
	if err != nil {
		p.logger.Error("inbound message ingestion failed",
			zap.Uint32("seq", seq),
			zap.String("from", in.FromEmail),
			zap.String("email_message_id", in.MessageID),
			zap.Error(err))
		return false
	}
	p.logger.Info("inbound message ingested",
		zap.Uint32("seq", seq),
		zap.String("from", in.FromEmail),
		zap.Int64("ticket_id", result.TicketID),
		zap.Bool("created_ticket", result.CreatedTicket),
		zap.Bool("skipped", result.Skipped),
		zap.String("skip_reason", result.SkipReason))
	return true
}

func (p *Poller) markSeen(client *imapclient.Client, seq uint32) error {
	cmd := client.Store(imap.SeqSetNum(seq), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store seen: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
