package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

//
// 设备描述：按 (manufacturerId, productId) 查找，描述设备的供电方式和寄存器/Endpoint结构。
//

type EndpointType int

const (
	TypeBinary EndpointType = iota
	TypeAnalog
	TypeVirtual
)

func (t EndpointType) String() string {
	switch t {
	case TypeBinary:
		return "BINARY"
	case TypeAnalog:
		return "ANALOG"
	default:
		return "VIRTUAL"
	}
}

type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if DirectionOutput == d {
		return "OUTPUT"
	}
	return "INPUT"
}

type EndpointProfile struct {
	Name      string
	Type      EndpointType
	Direction Direction
	Layout    Layout
	Factor    float64
	Offset    float64
	Unit      string
}

type RegisterProfile struct {
	Id byte
	// 寄存器字节数；为0时按Endpoint推算
	Size      int
	Endpoints []EndpointProfile
}

// RegisterSize 寄存器的初始长度
func (r RegisterProfile) RegisterSize() int {
	if r.Size > 0 {
		return r.Size
	}
	size := 1
	for _, ep := range r.Endpoints {
		if n := ep.Layout.RegisterLen(); n > size {
			size = n
		}
	}
	return size
}

type Profile struct {
	ManufacturerId uint32
	ProductId      uint32
	Manufacturer   string
	Product        string
	PowerDown      bool
	Registers      []RegisterProfile
}

// ProfileRepository 设备描述仓库
type ProfileRepository interface {
	Lookup(manufacturerId, productId uint32) (*Profile, bool)
}

////

// MemoryProfiles 内存中的设备描述仓库
type MemoryProfiles struct {
	lock     *sync.RWMutex
	profiles map[uint64]*Profile
}

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{
		lock:     new(sync.RWMutex),
		profiles: make(map[uint64]*Profile),
	}
}

// Add 检查并添加设备描述；相同产品的描述被替换
func (mp *MemoryProfiles) Add(profile *Profile) error {
	for _, reg := range profile.Registers {
		size := reg.RegisterSize()
		for _, ep := range reg.Endpoints {
			if err := ep.Layout.Validate(size); nil != err {
				return errors.WithMessage(err, fmt.Sprintf("%08X:%08X register %d endpoint %s",
					profile.ManufacturerId, profile.ProductId, reg.Id, ep.Name))
			}
		}
	}
	mp.lock.Lock()
	mp.profiles[profileKey(profile.ManufacturerId, profile.ProductId)] = profile
	mp.lock.Unlock()
	return nil
}

func (mp *MemoryProfiles) Lookup(manufacturerId, productId uint32) (*Profile, bool) {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	p, ok := mp.profiles[profileKey(manufacturerId, productId)]
	return p, ok
}

func (mp *MemoryProfiles) Len() int {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	return len(mp.profiles)
}

func profileKey(manufacturerId, productId uint32) uint64 {
	return uint64(manufacturerId)<<32 | uint64(productId)
}

////

type endpointConfig struct {
	Name      string   `mapstructure:"name"`
	Type      string   `mapstructure:"type"`
	Direction string   `mapstructure:"direction"`
	Mask      string   `mapstructure:"mask"`
	Position  *int     `mapstructure:"position"`
	Size      *int     `mapstructure:"size"`
	Factor    *float64 `mapstructure:"factor"`
	Offset    float64  `mapstructure:"offset"`
	Unit      string   `mapstructure:"unit"`
}

type registerConfig struct {
	Id        int              `mapstructure:"id"`
	Size      int              `mapstructure:"size"`
	Endpoints []endpointConfig `mapstructure:"endpoints"`
}

type deviceConfig struct {
	ManufacturerId int64            `mapstructure:"manufacturerId"`
	ProductId      int64            `mapstructure:"productId"`
	Manufacturer   string           `mapstructure:"manufacturer"`
	Product        string           `mapstructure:"product"`
	PowerDown      bool             `mapstructure:"powerDown"`
	Registers      []registerConfig `mapstructure:"registers"`
}

// LoadProfiles 从配置 [[Devices]] 中加载设备描述。
// Endpoint位置使用 mask = "0x00F0"，或者 position + size 二选一。
func LoadProfiles(devices []map[string]interface{}) (*MemoryProfiles, error) {
	repo := NewMemoryProfiles()
	for i, raw := range devices {
		dc, err := decodeDevice(raw)
		if nil != err {
			return nil, errors.Wrap(err, fmt.Sprintf("decode device[%d]", i))
		}
		profile, err := dc.toProfile()
		if nil != err {
			return nil, errors.WithMessage(err, fmt.Sprintf("device[%d]", i))
		}
		if err := repo.Add(profile); nil != err {
			return nil, err
		}
	}
	return repo, nil
}

// 设备ID允许使用十六进制字符串，如 "0x22"
func decodeDevice(raw map[string]interface{}) (deviceConfig, error) {
	var dc deviceConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &dc,
	})
	if nil != err {
		return dc, err
	}
	return dc, decoder.Decode(raw)
}

func (dc deviceConfig) toProfile() (*Profile, error) {
	profile := &Profile{
		ManufacturerId: uint32(dc.ManufacturerId),
		ProductId:      uint32(dc.ProductId),
		Manufacturer:   dc.Manufacturer,
		Product:        dc.Product,
		PowerDown:      dc.PowerDown,
	}
	for _, rc := range dc.Registers {
		if rc.Id < 0 || rc.Id > 0xFF {
			return nil, errors.New("invalid register id: " + strconv.Itoa(rc.Id))
		}
		reg := RegisterProfile{Id: byte(rc.Id), Size: rc.Size}
		for _, ec := range rc.Endpoints {
			ep, err := ec.toProfile()
			if nil != err {
				return nil, errors.WithMessage(err, fmt.Sprintf("register %d", rc.Id))
			}
			reg.Endpoints = append(reg.Endpoints, ep)
		}
		profile.Registers = append(profile.Registers, reg)
	}
	return profile, nil
}

func (ec endpointConfig) toProfile() (EndpointProfile, error) {
	ep := EndpointProfile{
		Name:   ec.Name,
		Factor: 1,
		Offset: ec.Offset,
		Unit:   ec.Unit,
	}
	if nil != ec.Factor {
		ep.Factor = *ec.Factor
	}
	switch strings.ToUpper(ec.Type) {
	case "BINARY":
		ep.Type = TypeBinary
	case "", "ANALOG":
		ep.Type = TypeAnalog
	case "VIRTUAL":
		ep.Type = TypeVirtual
	default:
		return ep, errors.New("unknown endpoint type: " + ec.Type)
	}
	switch strings.ToUpper(ec.Direction) {
	case "", "INPUT", "IN":
		ep.Direction = DirectionInput
	case "OUTPUT", "OUT":
		ep.Direction = DirectionOutput
	default:
		return ep, errors.New("unknown endpoint direction: " + ec.Direction)
	}
	hasMask := "" != ec.Mask
	hasBytes := nil != ec.Position || nil != ec.Size
	switch {
	case hasMask && hasBytes:
		return ep, errors.New("endpoint " + ec.Name + ": mask and position/size are exclusive")
	case hasMask:
		mask, err := strconv.ParseUint(ec.Mask, 0, 64)
		if nil != err {
			return ep, errors.Wrap(err, "invalid mask: "+ec.Mask)
		}
		ep.Layout = MaskLayout(mask)
	default:
		pos, size := 0, 1
		if nil != ec.Position {
			pos = *ec.Position
		}
		if nil != ec.Size {
			size = *ec.Size
		}
		ep.Layout = BytesLayout(pos, size)
	}
	return ep, nil
}
