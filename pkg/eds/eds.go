// Package eds populates an object dictionary from an Electronic Data
// Sheet, the ini-format device description vendors ship alongside their
// hardware. Only the subset the dictionary layer needs is read: entry
// addresses, names, data types, access types and default values. Anything
// else in the file is ignored.
package eds

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/canopen-go/master/pkg/od"
	"github.com/canopen-go/master/pkg/value"
)

var log = logrus.WithField("component", "eds")

// Options are the loader's explicit knobs. They are parameters, not
// process-wide state, so two loads with different options never interfere.
type Options struct {
	// NodeID substitutes $NODEID expressions in default values, the way
	// slaves compute their per-node COB-IDs.
	NodeID uint8
	// MarkEntriesGeneric ignores the ParameterName fields and names every
	// entry after its address instead, for dictionaries whose EDS carries
	// unusable or duplicated names.
	MarkEntriesGeneric bool
}

var (
	matchIndex    = regexp.MustCompile(`^[0-9A-Fa-f]{4}$`)
	matchSubindex = regexp.MustCompile(`^([0-9A-Fa-f]{4})[Ss]ub([0-9A-Fa-f]+)$`)
)

// EDS object type codes.
const (
	objectTypeVAR    = 0x07
	objectTypeARRAY  = 0x08
	objectTypeRECORD = 0x09
)

// Load parses an EDS and adds its objects to dict. file can be a path, an
// *os.File or a []byte. An entry the dictionary rejects (duplicate name or
// address, typically from a file that reuses parameter names) is logged
// and skipped rather than failing the load, so the dictionary and its name
// index always stay consistent with each other.
func Load(file any, dict *od.Dictionary, opts Options) error {
	edsFile, err := ini.Load(file)
	if err != nil {
		return fmt.Errorf("eds: %w", err)
	}

	// Parent VariableList (array/record) names by index, needed to build
	// the names of their subindex members.
	parents := make(map[uint16]string)

	for _, section := range edsFile.Sections() {
		sectionName := section.Name()

		if matchIndex.MatchString(sectionName) {
			idx, err := strconv.ParseUint(sectionName, 16, 16)
			if err != nil {
				return fmt.Errorf("eds: bad index section %q: %w", sectionName, err)
			}
			index := uint16(idx)
			name := section.Key("ParameterName").String()

			objectType := uint64(objectTypeVAR)
			if raw := section.Key("ObjectType").Value(); raw != "" {
				objectType, err = strconv.ParseUint(raw, 0, 8)
				if err != nil {
					return fmt.Errorf("eds: bad ObjectType in %q: %w", sectionName, err)
				}
			}

			switch objectType {
			case objectTypeVAR:
				addVariable(dict, section, od.Address{Index: index, Subindex: 0}, name, opts)
			case objectTypeARRAY, objectTypeRECORD:
				parents[index] = name
			default:
				log.WithFields(logrus.Fields{"section": sectionName, "object_type": objectType}).
					Warn("skipping unsupported object type")
			}
			continue
		}

		if m := matchSubindex.FindStringSubmatch(sectionName); m != nil {
			idx, err := strconv.ParseUint(m[1], 16, 16)
			if err != nil {
				return fmt.Errorf("eds: bad subindex section %q: %w", sectionName, err)
			}
			sidx, err := strconv.ParseUint(m[2], 16, 8)
			if err != nil {
				return fmt.Errorf("eds: bad subindex section %q: %w", sectionName, err)
			}
			index := uint16(idx)

			parent, ok := parents[index]
			if !ok {
				return fmt.Errorf("eds: subindex section %q has no parent array/record", sectionName)
			}
			name := parent + " " + section.Key("ParameterName").String()
			addVariable(dict, section, od.Address{Index: index, Subindex: uint8(sidx)}, name, opts)
		}
	}
	return nil
}

// addVariable decodes one VAR section (or array/record member) and adds it
// to the dictionary.
func addVariable(dict *od.Dictionary, section *ini.Section, addr od.Address, name string, opts Options) {
	if opts.MarkEntriesGeneric || name == "" {
		name = fmt.Sprintf("entry_%04x_%d", addr.Index, addr.Subindex)
	}

	t, err := dataType(section.Key("DataType").Value())
	if err != nil {
		log.WithError(err).WithField("address", addr).Warn("skipping entry with unusable data type")
		return
	}
	access := accessType(section.Key("AccessType").String())

	readMethod, writeMethod := defaultMethods(access)
	entry, err := dict.AddEntry(addr, name, t, access, readMethod, writeMethod)
	if err != nil {
		log.WithError(err).WithField("address", addr).Warn("skipping entry the dictionary rejected")
		return
	}

	if raw := section.Key("DefaultValue").String(); raw != "" {
		if v, err := parseDefault(t, raw, opts.NodeID); err == nil {
			entry.Set(v)
		} else {
			log.WithError(err).WithFields(logrus.Fields{"address": addr, "default": raw}).
				Debug("ignoring unparseable default value")
		}
	}
}

// dataType maps an EDS DataType code to a dictionary value type. The codes
// follow the CiA 301 data type numbering.
func dataType(raw string) (value.Type, error) {
	if raw == "" {
		return value.Invalid, fmt.Errorf("missing DataType")
	}
	code, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return value.Invalid, err
	}
	t := value.Type(code)
	if _, fixed := t.Size(); !fixed && !t.IsVariableLength() {
		return value.Invalid, fmt.Errorf("unsupported data type 0x%02x", code)
	}
	return t, nil
}

func accessType(raw string) od.AccessType {
	switch strings.ToLower(raw) {
	case "ro":
		return od.ReadOnly
	case "wo":
		return od.WriteOnly
	case "const":
		return od.Constant
	default:
		// rw, rww, rwr and anything unrecognized
		return od.ReadWrite
	}
}

func defaultMethods(access od.AccessType) (od.ReadAccessMethod, od.WriteAccessMethod) {
	switch access {
	case od.ReadOnly, od.Constant:
		return od.ReadSDO, od.WriteUseDefault
	case od.WriteOnly:
		return od.ReadUseDefault, od.WriteSDO
	default:
		return od.ReadSDO, od.WriteSDO
	}
}

// parseDefault decodes a DefaultValue field. Numeric fields accept any base
// strconv understands ("0x.." included) plus the $NODEID+expr form slaves
// use for per-node COB-IDs.
func parseDefault(t value.Type, raw string, nodeID uint8) (value.Value, error) {
	raw = strings.TrimSpace(raw)

	var nodeOffset uint64
	if strings.HasPrefix(raw, "$NODEID+") {
		nodeOffset = uint64(nodeID)
		raw = strings.TrimPrefix(raw, "$NODEID+")
	}

	switch t {
	case value.Boolean:
		u, err := strconv.ParseUint(raw, 0, 8)
		return value.FromBool(u != 0), err
	case value.Int8, value.Int16, value.Int32, value.Int64:
		i, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return value.Value{}, err
		}
		i += int64(nodeOffset)
		switch t {
		case value.Int8:
			return value.FromInt8(int8(i)), nil
		case value.Int16:
			return value.FromInt16(int16(i)), nil
		case value.Int32:
			return value.FromInt32(int32(i)), nil
		default:
			return value.FromInt64(i), nil
		}
	case value.Uint8, value.Uint16, value.Uint32, value.Uint64:
		u, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return value.Value{}, err
		}
		u += nodeOffset
		switch t {
		case value.Uint8:
			return value.FromUint8(uint8(u)), nil
		case value.Uint16:
			return value.FromUint16(uint16(u)), nil
		case value.Uint32:
			return value.FromUint32(uint32(u)), nil
		default:
			return value.FromUint64(u), nil
		}
	case value.Real32:
		f, err := strconv.ParseFloat(raw, 32)
		return value.FromReal32(float32(f)), err
	case value.Real64:
		f, err := strconv.ParseFloat(raw, 64)
		return value.FromReal64(f), err
	case value.VisibleString:
		return value.FromVisibleString(raw), nil
	case value.OctetString:
		return value.FromOctetString([]byte(raw)), nil
	default:
		return value.Value{}, fmt.Errorf("no default for type %s", t)
	}
}
