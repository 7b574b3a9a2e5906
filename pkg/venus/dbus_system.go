package venus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	BUSITEM_INTERFACE         = "com.victronenergy.BusItem"
	BUSITEM_GET_VALUE         = BUSITEM_INTERFACE + ".GetValue"
	SIGNAL_PROPERTIES         = "PropertiesChanged"
	SIGNAL_ITEMS              = "ItemsChanged"
	DBUS_SERVICE              = "org.freedesktop.DBus"
	DBUS_INTERFACE            = "org.freedesktop.DBus"
	DBUS_LIST_NAMES           = DBUS_INTERFACE + ".ListNames"
	DBUS_GET_NAME_OWNER       = DBUS_INTERFACE + ".GetNameOwner"
	SIGNAL_NAME_OWNER_CHANGED = "NameOwnerChanged"
	signalChannelCapacity     = 16
)

var ErrNoBatteryService = errors.New("no com.victronenergy.battery service found")

type DBusSystemReader struct {
	address        string
	phases         int
	batteryService string
	instrument     []Instrument
	logger         *zap.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// CreateDBusSystemReader reads com.victronenergy.system over D-Bus. An empty address uses the
// system bus, phases 0 reads the phase count at Open and an empty batteryService is discovered.
func CreateDBusSystemReader(address string, phases int, batteryService string,
	logger *zap.Logger, instrumentation *Instrument) (*DBusSystemReader, error) {
	if phases < 0 || phases > 3 {
		return nil, fmt.Errorf("unsupported number of phases %d", phases)
	}
	logger = logger.With(zap.String("target", "dbus"))
	return &DBusSystemReader{
		address:        address,
		phases:         phases,
		batteryService: batteryService,
		instrument:     instruments(traceLoggerInstrumentation(logger), instrumentation),
		logger:         logger,
	}, nil
}

func (r *DBusSystemReader) Open() error {
	var conn *dbus.Conn
	var err error
	if r.address == "" {
		conn, err = dbus.ConnectSystemBus()
	} else {
		conn, err = dbus.Connect(r.address)
	}
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	if r.batteryService == "" {
		names, err := r.listNames()
		if err != nil {
			return err
		}
		service, err := SelectBatteryService(names)
		if err != nil {
			return err
		}
		r.batteryService = service
	}
	r.logger.Info("dbus: using battery service", zap.String("service", r.batteryService))

	if r.phases == 0 {
		value, err := r.getValue(SERVICE_SYSTEM, PATH_NUMBER_OF_PHASES)
		if err != nil {
			return err
		}
		if r.phases, err = numberOfPhases(value); err != nil {
			return err
		}
	}
	return nil
}

func numberOfPhases(value any) (int, error) {
	phases, ok := ToFloat64(value)
	if !ok || phases < 1 || phases > 3 || phases != math.Trunc(phases) {
		return 0, fmt.Errorf("invalid %s value %v, configure the number of phases", PATH_NUMBER_OF_PHASES, value)
	}
	return int(phases), nil
}

func (r *DBusSystemReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *DBusSystemReader) NumberOfPhases() int {
	return r.phases
}

func (r *DBusSystemReader) BatteryService() string {
	return r.batteryService
}

func (r *DBusSystemReader) ReadSystemState() (*SystemState, error) {
	var state SystemState
	var err error

	state.PhaseConsumption = make([]any, r.phases)
	for i := range state.PhaseConsumption {
		state.PhaseConsumption[i], err = r.getValue(SERVICE_SYSTEM, PhaseConsumptionPath(i+1))
		if err != nil {
			return nil, err
		}
	}
	if state.PVPower, err = r.getValue(SERVICE_SYSTEM, PATH_PV_POWER); err != nil {
		return nil, err
	}
	if state.BatteryPower, err = r.getValue(SERVICE_SYSTEM, PATH_BATTERY_POWER); err != nil {
		return nil, err
	}
	if state.ChargeMode, err = r.getValue(r.batteryService, PATH_CHARGE_MODE); err != nil {
		return nil, err
	}
	if state.Throttling, err = r.getValue(r.batteryService, PATH_THROTTLING); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *DBusSystemReader) ReadActiveInSource() (any, error) {
	return r.getValue(SERVICE_SYSTEM, PATH_ACTIVE_IN_SOURCE)
}

// WatchActiveInSource listens for PropertiesChanged and ItemsChanged signals of the system
// service and reports the active input source path. The service owner is followed across
// restarts and a fresh value is read whenever the service reappears.
func (r *DBusSystemReader) WatchActiveInSource(ctx context.Context, onChange func(ValueChange)) error {
	conn, err := r.connection()
	if err != nil {
		return err
	}

	ownerMatch := []dbus.MatchOption{
		dbus.WithMatchSender(DBUS_SERVICE),
		dbus.WithMatchInterface(DBUS_INTERFACE),
		dbus.WithMatchMember(SIGNAL_NAME_OWNER_CHANGED),
		dbus.WithMatchArg(0, SERVICE_SYSTEM),
	}
	propsMatch := []dbus.MatchOption{
		dbus.WithMatchInterface(BUSITEM_INTERFACE),
		dbus.WithMatchMember(SIGNAL_PROPERTIES),
		dbus.WithMatchObjectPath(dbus.ObjectPath(PATH_ACTIVE_IN_SOURCE)),
	}
	itemsMatch := []dbus.MatchOption{
		dbus.WithMatchInterface(BUSITEM_INTERFACE),
		dbus.WithMatchMember(SIGNAL_ITEMS),
	}
	for _, match := range [][]dbus.MatchOption{ownerMatch, propsMatch, itemsMatch} {
		if err := conn.AddMatchSignal(match...); err != nil {
			return err
		}
		defer conn.RemoveMatchSignal(match...)
	}

	signals := make(chan *dbus.Signal, signalChannelCapacity)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	// subscribe before resolving the owner so no restart is missed in between
	var owner string
	err = conn.BusObject().Call(DBUS_GET_NAME_OWNER, 0, SERVICE_SYSTEM).Store(&owner)
	if err != nil {
		return err
	}
	watch := &sourceWatch{owner: owner}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return errors.New("dbus signal channel closed")
			}
			value, found, reappeared := watch.handle(sig)
			if reappeared {
				r.logger.Info("dbus: system service owner changed", zap.String("owner", watch.owner))
				// values published before the owner change was seen are not signalled again
				if value, err = r.ReadActiveInSource(); err != nil {
					return err
				}
				found = true
			}
			if found {
				onChange(ValueChange{
					Service: SERVICE_SYSTEM,
					Path:    PATH_ACTIVE_IN_SOURCE,
					Value:   value,
				})
			}
		}
	}
}

// sourceWatch filters bus signals down to active input source changes of the current
// owner of the system service.
type sourceWatch struct {
	owner string
}

// handle returns the signalled value, if any. A vanished system service reports a missing
// value and reappeared is set when it got a new owner.
func (w *sourceWatch) handle(sig *dbus.Signal) (value any, found bool, reappeared bool) {
	if sig.Name == DBUS_INTERFACE+"."+SIGNAL_NAME_OWNER_CHANGED {
		if len(sig.Body) < 3 {
			return nil, false, false
		}
		name, _ := sig.Body[0].(string)
		newOwner, _ := sig.Body[2].(string)
		if name != SERVICE_SYSTEM {
			return nil, false, false
		}
		w.owner = newOwner
		if newOwner == "" {
			return nil, true, false
		}
		return nil, false, true
	}
	if w.owner == "" || sig.Sender != w.owner {
		return nil, false, false
	}
	value, found = activeInSourceFromSignal(sig)
	return value, found, false
}

func activeInSourceFromSignal(sig *dbus.Signal) (any, bool) {
	if len(sig.Body) == 0 {
		return nil, false
	}
	switch sig.Name {
	case BUSITEM_INTERFACE + "." + SIGNAL_PROPERTIES:
		if sig.Path != dbus.ObjectPath(PATH_ACTIVE_IN_SOURCE) {
			return nil, false
		}
		props, ok := sig.Body[0].(map[string]dbus.Variant)
		if !ok {
			return nil, false
		}
		value, ok := props["Value"]
		if !ok {
			return nil, false
		}
		return BusValue(value), true
	case BUSITEM_INTERFACE + "." + SIGNAL_ITEMS:
		items, ok := sig.Body[0].(map[string]map[string]dbus.Variant)
		if !ok {
			return nil, false
		}
		props, ok := items[PATH_ACTIVE_IN_SOURCE]
		if !ok {
			return nil, false
		}
		value, ok := props["Value"]
		if !ok {
			return nil, false
		}
		return BusValue(value), true
	}
	return nil, false
}

func (r *DBusSystemReader) connection() (*dbus.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil, errors.New("dbus connection is not open")
	}
	return r.conn, nil
}

func (r *DBusSystemReader) getValue(service, path string) (any, error) {
	defer RecordTimer("GetValue", r.instrument)()
	conn, err := r.connection()
	if err != nil {
		return nil, err
	}
	call := conn.Object(service, dbus.ObjectPath(path)).Call(BUSITEM_GET_VALUE, 0)
	if call.Err != nil {
		var dbusErr dbus.Error
		if errors.As(call.Err, &dbusErr) && strings.HasSuffix(dbusErr.Name, ".UnknownObject") {
			return nil, nil
		}
		return nil, fmt.Errorf("%s %s: %w", service, path, call.Err)
	}
	if len(call.Body) == 0 {
		return nil, nil
	}
	if v, ok := call.Body[0].(dbus.Variant); ok {
		return BusValue(v), nil
	}
	return call.Body[0], nil
}

func (r *DBusSystemReader) listNames() ([]string, error) {
	defer RecordTimer("ListNames", r.instrument)()
	conn, err := r.connection()
	if err != nil {
		return nil, err
	}
	var names []string
	err = conn.BusObject().Call(DBUS_LIST_NAMES, 0).Store(&names)
	return names, err
}

// BusValue unwraps a BusItem value. Venus publishes invalid values as an empty array.
func BusValue(v dbus.Variant) any {
	value := v.Value()
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() == 0 {
		return nil
	}
	return value
}

// SelectBatteryService picks the battery service, preferring the aggregate one.
func SelectBatteryService(names []string) (string, error) {
	var batteries []string
	for _, name := range names {
		if strings.HasPrefix(name, SERVICE_BATTERY_PREFIX) {
			batteries = append(batteries, name)
		}
	}
	if len(batteries) == 0 {
		return "", ErrNoBatteryService
	}
	sort.Strings(batteries)
	for _, name := range batteries {
		if strings.HasSuffix(name, AGGREGATE_SUFFIX) {
			return name, nil
		}
	}
	return batteries[0], nil
}

// compile time check
var _ SystemReader = (*DBusSystemReader)(nil)
var _ SystemReader = (*ModbusSystemReader)(nil)
