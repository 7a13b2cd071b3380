package testutils

import (
	"github.com/go-ble/ble"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/testutils/mocks"
)

// Advertisement is a static device.Advertisement used as scan input in tests
type Advertisement struct {
	Address      string
	Name         string
	Rssi         int
	Connect      bool
	ServiceUUIDs []string
	ManufData    []byte
}

func (a *Advertisement) ID() string               { return a.Address }
func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) RSSI() int                { return a.Rssi }
func (a *Advertisement) Connectable() bool        { return a.Connect }
func (a *Advertisement) Services() []string       { return a.ServiceUUIDs }
func (a *Advertisement) ManufacturerData() []byte { return a.ManufData }

// AdvertisementBuilder builds BLE advertisements for testing.
// Build returns a static device.Advertisement; BuildBLE returns a go-ble mock.
type AdvertisementBuilder struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	connectable bool
}

// NewAdvertisementBuilder creates a new AdvertisementBuilder with default values.
// The builder starts with connectable=true and RSSI of -50.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		connectable: true,
		rssi:        -50,
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b
}

// Build creates a static device.Advertisement from the configured fields.
func (b *AdvertisementBuilder) Build() *Advertisement {
	return &Advertisement{
		Address:      b.address,
		Name:         b.name,
		Rssi:         b.rssi,
		Connect:      b.connectable,
		ServiceUUIDs: append([]string(nil), b.services...),
		ManufData:    b.manufData,
	}
}

// BuildBLE creates a MockBLEAdvertisement that implements ble.Advertisement.
// Every field is answered, unset ones with the builder defaults.
func (b *AdvertisementBuilder) BuildBLE() *mocks.MockBLEAdvertisement {
	adv := &mocks.MockBLEAdvertisement{}

	bleServices := make([]ble.UUID, 0, len(b.services))
	for _, s := range b.services {
		bleServices = append(bleServices, ble.MustParse(s))
	}

	adv.On("Addr").Return(ble.NewAddr(b.address)).Maybe()
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("ManufacturerData").Return(b.manufData).Maybe()
	adv.On("Services").Return(bleServices).Maybe()
	adv.On("Connectable").Return(b.connectable).Maybe()

	return adv
}

// AdvertisementArrayBuilder builds an ordered list of advertisements for scan replay.
//
//	ads := NewAdvertisementArrayBuilder().
//	    WithAdvertisements(ad1, ad2).
//	    WithNewAdvertisement().WithName("ESP32_MOTOR_LED").WithAddress("AA:BB:CC:DD:EE:01").Build().
//	    Build()
type AdvertisementArrayBuilder struct {
	advertisements []device.Advertisement
}

// NewAdvertisementArrayBuilder creates an empty array builder.
func NewAdvertisementArrayBuilder() *AdvertisementArrayBuilder {
	return &AdvertisementArrayBuilder{
		advertisements: make([]device.Advertisement, 0),
	}
}

// WithAdvertisements adds pre-existing advertisements to the array.
func (ab *AdvertisementArrayBuilder) WithAdvertisements(ads ...device.Advertisement) *AdvertisementArrayBuilder {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// WithNewAdvertisement returns an item builder whose Build appends to this array.
func (ab *AdvertisementArrayBuilder) WithNewAdvertisement() *AdvertisementArrayBuilderItem {
	return &AdvertisementArrayBuilderItem{
		AdvertisementBuilder: NewAdvertisementBuilder(),
		parent:               ab,
	}
}

// Build returns the advertisements in insertion order.
func (ab *AdvertisementArrayBuilder) Build() []device.Advertisement {
	return append([]device.Advertisement(nil), ab.advertisements...)
}

// AdvertisementArrayBuilderItem wraps AdvertisementBuilder to return to the parent array builder.
type AdvertisementArrayBuilderItem struct {
	*AdvertisementBuilder
	parent *AdvertisementArrayBuilder
}

// Build adds the advertisement to the parent array and returns the array builder
func (abi *AdvertisementArrayBuilderItem) Build() *AdvertisementArrayBuilder {
	abi.parent.advertisements = append(abi.parent.advertisements, abi.AdvertisementBuilder.Build())
	return abi.parent
}

// The item-level setters shadow the embedded ones so chains end in the item's Build.

func (abi *AdvertisementArrayBuilderItem) WithName(name string) *AdvertisementArrayBuilderItem {
	abi.AdvertisementBuilder.WithName(name)
	return abi
}

func (abi *AdvertisementArrayBuilderItem) WithAddress(addr string) *AdvertisementArrayBuilderItem {
	abi.AdvertisementBuilder.WithAddress(addr)
	return abi
}

func (abi *AdvertisementArrayBuilderItem) WithRSSI(rssi int) *AdvertisementArrayBuilderItem {
	abi.AdvertisementBuilder.WithRSSI(rssi)
	return abi
}

func (abi *AdvertisementArrayBuilderItem) WithServices(uuids ...string) *AdvertisementArrayBuilderItem {
	abi.AdvertisementBuilder.WithServices(uuids...)
	return abi
}

func (abi *AdvertisementArrayBuilderItem) WithManufacturerData(data []byte) *AdvertisementArrayBuilderItem {
	abi.AdvertisementBuilder.WithManufacturerData(data)
	return abi
}

func (abi *AdvertisementArrayBuilderItem) WithConnectable(c bool) *AdvertisementArrayBuilderItem {
	abi.AdvertisementBuilder.WithConnectable(c)
	return abi
}
