package alerting

import (
	"context"
	"errors"
)

type fanout []Notifier

// Fanout delivers each notification to every notifier. It returns nil when
// given no notifiers.
func Fanout(notifiers ...Notifier) Notifier {
	list := make(fanout, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	switch len(list) {
	case 0:
		return nil
	case 1:
		return list[0]
	default:
		return list
	}
}

// Notify 依次推送，单个渠道失败不影响其他渠道。
func (f fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
