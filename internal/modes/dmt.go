package modes

func dmt(clock uint32, h, v [4]uint16, flags Flag) Mode {
	m := Mode{
		Clock:    clock,
		HDisplay: h[0], HSyncStart: h[1], HSyncEnd: h[2], HTotal: h[3],
		VDisplay: v[0], VSyncStart: v[1], VSyncEnd: v[2], VTotal: v[3],
		Flags: flags,
		Type:  TypeDriver,
	}
	m.SetName()
	return m
}

// EstablishedModes maps the bits of the EDID established timings bytes
// (byte 35 bit 7 is index 0) to VESA DMT timings. Unsupported entries are
// zero.
var EstablishedModes = [17]Mode{
	// 800x600@60
	0: dmt(40000, [4]uint16{800, 840, 968, 1056}, [4]uint16{600, 601, 605, 628}, pp),
	// 800x600@56
	1: dmt(36000, [4]uint16{800, 824, 896, 1024}, [4]uint16{600, 601, 603, 625}, pp),
	// 640x480@75
	2: dmt(31500, [4]uint16{640, 656, 720, 840}, [4]uint16{480, 481, 484, 500}, nn),
	// 640x480@72
	3: dmt(31500, [4]uint16{640, 664, 704, 832}, [4]uint16{480, 489, 492, 520}, nn),
	// 640x480@60
	5: dmt(25175, [4]uint16{640, 656, 752, 800}, [4]uint16{480, 490, 492, 525}, nn),
	// 720x400@70
	7: dmt(28320, [4]uint16{720, 738, 846, 900}, [4]uint16{400, 412, 414, 449}, FlagNHSync|FlagPVSync),
	// 1280x1024@75
	8: dmt(135000, [4]uint16{1280, 1296, 1440, 1688}, [4]uint16{1024, 1025, 1028, 1066}, pp),
	// 1024x768@75
	9: dmt(78750, [4]uint16{1024, 1040, 1136, 1312}, [4]uint16{768, 769, 772, 800}, pp),
	// 1024x768@70
	10: dmt(75000, [4]uint16{1024, 1048, 1184, 1328}, [4]uint16{768, 771, 777, 806}, nn),
	// 1024x768@60
	11: dmt(65000, [4]uint16{1024, 1048, 1184, 1344}, [4]uint16{768, 771, 777, 806}, nn),
	// 800x600@75
	14: dmt(49500, [4]uint16{800, 816, 896, 1056}, [4]uint16{600, 601, 604, 625}, pp),
	// 800x600@72
	15: dmt(50000, [4]uint16{800, 856, 976, 1040}, [4]uint16{600, 637, 643, 666}, pp),
}

// NoEDIDModes returns the DMT modes offered when a sink provides no EDID,
// limited to hdisplay x vdisplay.
func NoEDIDModes(hdisplay, vdisplay uint16) []Mode {
	var out []Mode
	for _, m := range EstablishedModes {
		if m.Clock == 0 || m.Flags&FlagInterlace != 0 {
			continue
		}
		if m.HDisplay > hdisplay || m.VDisplay > vdisplay {
			continue
		}
		out = append(out, m)
	}
	return out
}
