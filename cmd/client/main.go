package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/app"
	"github.com/Freeeeeet/skillswap_core/internal/call"
	"github.com/Freeeeeet/skillswap_core/internal/controller"
	"github.com/Freeeeeet/skillswap_core/internal/media"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/notify"
	"github.com/Freeeeeet/skillswap_core/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "skillswap",
		Short:         "SkillSwap session client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newListenCmd())
	root.AddCommand(newRequestCmd())
	root.AddCommand(newJoinCmd())
	root.AddCommand(newAcceptCmd())
	root.AddCommand(newRejectCmd())
	root.AddCommand(newCancelCmd())
	root.AddCommand(newRescheduleCmd())
	root.AddCommand(newReviewCmd())
	root.AddCommand(newShowCmd())
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stay online: presence, notifications, reminders and reconciliation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			dispatcher := notify.NewDispatcher(notify.DefaultPolicy(), rt.logger.Named("notify"))
			dispatcher.OnChange(func(c notify.Change) {
				if c.Kind == notify.ChangePublished {
					_, _ = fmt.Fprintln(out, controller.FormatNotification(c.Notification))
				}
			})

			notify.NewRouter(dispatcher.Publish, rt.logger.Named("router")).Attach(rt.channel)
			reminders := notify.NewReminderSource(rt.api, dispatcher.Publish, rt.logger.Named("reminders"))

			rt.presence.OnChange(func(online []string) {
				rt.logger.Info("Presence updated", zap.Int("online", len(online)))
			})
			rt.reconciliation.OnResolved(func(s model.Session) {
				_, _ = fmt.Fprintf(out, "session %s reconciled: %s\n", s.ID, s.Status)
			})

			if rt.cfg.TelegramEnabled() {
				nb, err := controller.NewNotificationBot(rt.cfg.TelegramToken, rt.cfg.TelegramChatID, dispatcher, rt.logger.Named("telegram"))
				if err != nil {
					return err
				}
				if err := nb.RegisterHandlers(ctx); err != nil {
					return err
				}
				go nb.Start(ctx)
			}

			scheduler := app.NewScheduler(rt.logger.Named("scheduler"),
				app.Task{Name: "reminders", Interval: rt.cfg.ReminderInterval, Run: reminders.Tick},
				app.Task{Name: "reconciliation", Interval: rt.cfg.ReconcileInterval, Run: rt.reconciliation.RunOnce},
			)
			scheduler.Start(ctx)
			defer scheduler.Stop()

			rt.channel.Connect(ctx, rt.cfg.AuthToken)
			rt.logger.Info("Listening", zap.String("user_id", rt.cfg.UserID))

			<-ctx.Done()
			return nil
		},
	}
}

func newJoinCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "join <session-id>",
		Short: "Start or join the video call of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			provider := media.NewLinkProvider(rt.cfg.MeetBaseURL, func(_ context.Context, roomURL string) error {
				_, err := fmt.Fprintf(out, "Open the call: %s\n", roomURL)
				return err
			}, rt.logger.Named("media")).WithRoomDetails(rt.api)

			rt.channel.Connect(ctx, rt.cfg.AuthToken)

			active, err := rt.coordinator(provider).Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer active.Close()

			joinCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			err = active.Call.Join(joinCtx, rt.cfg.DisplayName)
			cancel()
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(out, "Press Enter to end the session, type left if you closed the room")
			return waitForCallExit(ctx, cmd.InOrStdin(), out, active.Call, provider, active.Exits(), notes)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "session notes saved when you end the call")
	return cmd
}

// waitForCallExit ждёт завершения звонка одним из трёх путей.
// Пустая строка завершает занятие, "left" сообщает о выходе из комнаты во внешнем клиенте,
// "+id" и "-id" о входе и выходе второго участника.
func waitForCallExit(ctx context.Context, in io.Reader, out io.Writer, orch *call.Orchestrator, provider *media.LinkProvider, exits <-chan call.ExitReason, notes string) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line := <-lines:
			handle := provider.Current()
			switch {
			case line == "":
				if !orch.NeedsConfirmation() {
					continue
				}
				if err := orch.Leave(notes); err != nil && !errors.Is(err, call.ErrEndingInProgress) {
					return err
				}
			case line == "left" && handle != nil:
				handle.Hangup()
			case strings.HasPrefix(line, "+") && handle != nil:
				handle.ParticipantJoined(strings.TrimPrefix(line, "+"))
			case strings.HasPrefix(line, "-") && handle != nil:
				handle.ParticipantLeft(strings.TrimPrefix(line, "-"))
			default:
				_, _ = fmt.Fprintln(out, "Enter: end session, left: you left the room, +id/-id: participant joined/left")
			}
		case reason := <-exits:
			switch reason {
			case call.ExitEndedRemotely:
				_, _ = fmt.Fprintln(out, "The other participant ended the session")
			case call.ExitProviderLeft:
				_, _ = fmt.Fprintln(out, "You left the call")
			default:
				_, _ = fmt.Fprintln(out, "Session ended")
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func newAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <session-id>",
		Short: "Accept a pending session request (teacher)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, m *session.Machine) error {
				return m.Accept(ctx)
			})
		},
	}
}

func newRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <session-id>",
		Short: "Reject a pending session request (teacher)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, m *session.Machine) error {
				return m.Reject(ctx, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the student")
	return cmd
}

func newCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a pending or confirmed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, m *session.Machine) error {
				return m.Cancel(ctx, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func newRescheduleCmd() *cobra.Command {
	var at, reason string
	cmd := &cobra.Command{
		Use:   "reschedule <session-id>",
		Short: "Move a confirmed session to a new time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("parse --at: %w", err)
			}
			return runAction(cmd, args[0], func(ctx context.Context, m *session.Machine) error {
				return m.Reschedule(ctx, when, reason)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "new start time, RFC3339")
	cmd.Flags().StringVar(&reason, "reason", "", "reschedule reason")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newReviewCmd() *cobra.Command {
	var (
		rating    int
		feedback  string
		recommend bool
	)
	cmd := &cobra.Command{
		Use:   "review <session-id>",
		Short: "Review a completed session (student)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, m *session.Machine) error {
				return m.SubmitReview(ctx, model.Review{
					Rating:         rating,
					Feedback:       feedback,
					WouldRecommend: recommend,
				})
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&feedback, "feedback", "", "free-form feedback")
	cmd.Flags().BoolVar(&recommend, "recommend", false, "would recommend this teacher")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show session status and countdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := rt.machine(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSession(out, m.Session(), m.Role(), time.Now())

			rec, err := rt.reconciliation.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			if rec != nil && !rec.Resolved() {
				_, _ = fmt.Fprintf(out, "  end not confirmed by server (%s), %d attempts\n", rec.Reason, rec.Attempts)
			}
			return nil
		},
	}
}

func newRequestCmd() *cobra.Command {
	var (
		teacherID string
		skill     string
		at        string
		duration  int
		message   string
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a session with a teacher (student)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scheduledFor, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			if duration <= 0 {
				return errors.New("--duration must be positive")
			}

			ctx, stop := signalContext()
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()

			s, err := rt.api.CreateSession(reqCtx, api.CreateSessionRequest{
				TeacherID:    teacherID,
				Skill:        skill,
				ScheduledFor: scheduledFor,
				Duration:     duration,
				Message:      message,
			})
			if err != nil {
				if api.IsRetryable(err) {
					return fmt.Errorf("%w (temporary failure, try again)", err)
				}
				return err
			}

			printSession(cmd.OutOrStdout(), *s, model.RoleStudent, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&teacherID, "teacher", "", "teacher user ID")
	cmd.Flags().StringVar(&skill, "skill", "", "skill to learn")
	cmd.Flags().StringVar(&at, "at", "", "start time, RFC3339")
	cmd.Flags().IntVar(&duration, "duration", 60, "duration in minutes")
	cmd.Flags().StringVar(&message, "message", "", "message to the teacher")
	_ = cmd.MarkFlagRequired("teacher")
	_ = cmd.MarkFlagRequired("skill")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

// runAction выполняет одно действие над занятием и печатает результат
func runAction(cmd *cobra.Command, sessionID string, action func(context.Context, *session.Machine) error) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := rt.machine(ctx, sessionID)
	if err != nil {
		return err
	}

	actionCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := action(actionCtx, m); err != nil {
		if session.IsRetryable(err) {
			return fmt.Errorf("%w (temporary failure, try again)", err)
		}
		return err
	}

	printSession(cmd.OutOrStdout(), m.Session(), m.Role(), time.Now())
	return nil
}

func printSession(out io.Writer, s model.Session, role model.Role, now time.Time) {
	_, _ = fmt.Fprintf(out, "%s  %s  [%s]\n", s.ID, s.Skill, s.Status)
	_, _ = fmt.Fprintf(out, "  you are: %s\n", role)
	_, _ = fmt.Fprintf(out, "  scheduled: %s (%d min)\n", s.ScheduledFor.Local().Format("02.01.2006 15:04"), s.Duration)

	switch {
	case s.Status == model.SessionStatusConfirmed:
		_, _ = fmt.Fprintf(out, "  starts in: %s\n", session.FormatTimeUntil(now, s.ScheduledFor))
	case s.Status == model.SessionStatusInProgress:
		_, _ = fmt.Fprintf(out, "  in progress until %s\n", s.EndsAt().Local().Format("15:04"))
	case s.Status == model.SessionStatusCompleted:
		_, _ = fmt.Fprintf(out, "  lasted: %d min\n", s.ActualDuration)
		if s.Review != nil {
			_, _ = fmt.Fprintf(out, "  review: %d/5\n", s.Review.Rating)
		}
	case s.Reason != "":
		_, _ = fmt.Fprintf(out, "  reason: %s\n", s.Reason)
	}

	if session.CanJoin(s, now) {
		_, _ = fmt.Fprintln(out, "  ready to join")
	}
}
