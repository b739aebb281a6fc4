// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

// powerDomainTimeoutMs bounds each CDBGPWRUPACK/CSYSPWRUPACK poll inside
// DPInit's retry loop.
const powerDomainTimeoutMs = 10

// DPInit performs the power-domain handshake and arms overrun detection
// on dap's debug port, retrying up to 10 times. Any step failing moves
// on to the next attempt; the first success breaks the loop. Returns the
// last attempt's error if all 10 fail (spec.md §4.F).
func DPInit(dap *DAP) error {
	dap.selectCache = selectInvalid

	var lastErr error
	for attempt := 0; attempt < maxWaitRetries; attempt++ {
		lastErr = dpInitAttempt(dap)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func dpInitAttempt(dap *DAP) error {
	if err := dap.transport.QueueDPRead(DPCtrlStat, nil); err != nil {
		return err
	}
	if err := dap.transport.QueueDPWrite(DPCtrlStat, CtrlStatSStickyErr); err != nil {
		return err
	}
	if err := dap.transport.QueueDPRead(DPCtrlStat, nil); err != nil {
		return err
	}

	dap.ctrlStat = CtrlStatCDbgPwrUpReq | CtrlStatCSysPwrUpReq
	if err := dap.transport.QueueDPWrite(DPCtrlStat, dap.ctrlStat); err != nil {
		return err
	}

	if err := dap.transport.PollRegister(DPCtrlStat, CtrlStatCDbgPwrUpAck, CtrlStatCDbgPwrUpAck, powerDomainTimeoutMs); err != nil {
		return err
	}
	if err := dap.transport.PollRegister(DPCtrlStat, CtrlStatCSysPwrUpAck, CtrlStatCSysPwrUpAck, powerDomainTimeoutMs); err != nil {
		return err
	}

	if err := dap.transport.QueueDPRead(DPCtrlStat, nil); err != nil {
		return err
	}

	dap.ctrlStat = CtrlStatCDbgPwrUpReq | CtrlStatCSysPwrUpReq | CtrlStatCOrunDetect
	if err := dap.transport.QueueDPWrite(DPCtrlStat, dap.ctrlStat); err != nil {
		return err
	}
	if err := dap.transport.QueueDPRead(DPCtrlStat, nil); err != nil {
		return err
	}

	return dap.transport.Run()
}

// DAPInit allocates a DAP bound to transport and brings up its debug
// port, combining NewDAP with DPInit.
func DAPInit(transport Transport, opts ...DAPOption) (*DAP, error) {
	dap := NewDAP(transport, opts...)
	if err := DPInit(dap); err != nil {
		return nil, err
	}
	return dap, nil
}
