package mediactl

import (
	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/description"
)

// clientMedia is the state of a media that has been set up.
type clientMedia struct {
	media          *description.Media
	url            *base.URL
	sessionID      string
	serverAddress  string
	interleaved    bool
	multicast      bool
	clientPorts    *[2]int
	serverPorts    *[2]int
	interleavedIDs *[2]int
}

func (cm *clientMedia) descriptor() description.SubsessionDescriptor {
	return description.SubsessionDescriptor{
		Medium:         cm.media.Type,
		CodecName:      cm.media.CodecName,
		ClockRate:      cm.media.ClockRate,
		SessionID:      cm.sessionID,
		ServerAddress:  cm.serverAddress,
		Interleaved:    cm.interleaved,
		Multicast:      cm.multicast,
		ClientPorts:    cm.clientPorts,
		ServerPorts:    cm.serverPorts,
		InterleavedIDs: cm.interleavedIDs,
	}
}

func (c *Client) findMedia(media *description.Media) *clientMedia {
	for _, cm := range c.medias {
		if cm.media == media {
			return cm
		}
	}
	return nil
}

func (c *Client) findMediaByChannel(channel int) (*clientMedia, bool) {
	for _, cm := range c.medias {
		if cm.interleavedIDs == nil {
			continue
		}
		if cm.interleavedIDs[0] == channel {
			return cm, true
		}
		if cm.interleavedIDs[1] == channel {
			return cm, false
		}
	}
	return nil, false
}

func (c *Client) removeMedia(cm *clientMedia) {
	for i, cur := range c.medias {
		if cur == cm {
			c.medias = append(c.medias[:i], c.medias[i+1:]...)
			return
		}
	}
}

// Subsessions returns the descriptors of the medias that have been set up,
// in setup order.
func (c *Client) Subsessions() []description.SubsessionDescriptor {
	ret := make([]description.SubsessionDescriptor, len(c.medias))
	for i, cm := range c.medias {
		ret[i] = cm.descriptor()
	}
	return ret
}
