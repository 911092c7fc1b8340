package models

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	pbinary "github.com/S1riyS/pocketfs/pkg/binary"
)

const DatanodeInfoSize = 20

// DatanodeInfo identifies a storage node and how to talk to it.
type DatanodeInfo struct {
	StorageType   int32
	StorageClass  int32
	LocationClass int32
	IP            [4]byte
	Port          int32
}

// NewDatanodeInfo resolves host:port into a DatanodeInfo. Only IPv4 is
// representable on the wire.
func NewDatanodeInfo(hostport string, storageClass, locationClass int32) (DatanodeInfo, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return DatanodeInfo{}, fmt.Errorf("invalid datanode address %q: %w", hostport, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return DatanodeInfo{}, fmt.Errorf("invalid datanode port %q: %w", portStr, err)
	}

	if host == "" || host == "localhost" {
		host = "127.0.0.1"
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		ips, lerr := net.LookupIP(host)
		if lerr != nil {
			return DatanodeInfo{}, fmt.Errorf("cannot resolve datanode host %q: %w", host, lerr)
		}
		for _, ip := range ips {
			if v4 := ip.To4(); v4 != nil {
				addr = netip.AddrFrom4([4]byte(v4))
				break
			}
		}
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return DatanodeInfo{}, fmt.Errorf("datanode host %q has no IPv4 address", host)
	}

	return DatanodeInfo{
		StorageClass:  storageClass,
		LocationClass: locationClass,
		IP:            addr.As4(),
		Port:          int32(port),
	}, nil
}

// Key identifies the endpoint: IPv4 address in the high 32 bits, port in the low.
func (d DatanodeInfo) Key() int64 {
	ip := binary.BigEndian.Uint32(d.IP[:])
	return int64(ip)<<32 | int64(uint32(d.Port))
}

func (d DatanodeInfo) Address() string {
	return net.JoinHostPort(netip.AddrFrom4(d.IP).String(), strconv.Itoa(int(d.Port)))
}

func (d DatanodeInfo) String() string {
	return fmt.Sprintf("%s(class=%d, location=%d)", d.Address(), d.StorageClass, d.LocationClass)
}

func (d *DatanodeInfo) Write(buf *pbinary.Buffer) error {
	buf.PutInt(d.StorageType)
	buf.PutInt(d.StorageClass)
	buf.PutInt(d.LocationClass)
	buf.PutBytes(d.IP[:])
	buf.PutInt(d.Port)
	return buf.Err()
}

func (d *DatanodeInfo) Update(buf *pbinary.Buffer) error {
	d.StorageType = buf.GetInt()
	d.StorageClass = buf.GetInt()
	d.LocationClass = buf.GetInt()
	buf.GetBytes(d.IP[:])
	d.Port = buf.GetInt()
	return buf.Err()
}

func (d *DatanodeInfo) Size() int { return DatanodeInfoSize }
