/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package protocol

// RootVector is the Vector field of the Root (OTP) layer.
type RootVector uint16

// Root layer vectors.
const (
	VectorOTPTransform     RootVector = 0x0001
	VectorOTPAdvertisement RootVector = 0x0002
)

// RootVectorToString maps RootVector to its wire name.
var rootVectorToString = map[RootVector]string{
	VectorOTPTransform:     "TRANSFORM_MESSAGE",
	VectorOTPAdvertisement: "ADVERTISEMENT_MESSAGE",
}

func (v RootVector) String() string {
	if s, ok := rootVectorToString[v]; ok {
		return s
	}
	return "UNKNOWN"
}

// TransformVector is the Vector field of the Transform layer.
type TransformVector uint16

// VectorOTPPoint is the only defined Transform layer vector.
const VectorOTPPoint TransformVector = 0x0001

// PointVector is the Vector field of the Point layer.
type PointVector uint16

// VectorOTPModule is the only defined Point layer vector.
const VectorOTPModule PointVector = 0x0001

// AdvertisementVector is the Vector field of the inner Advertisement layers.
type AdvertisementVector uint16

// Advertisement inner-layer vectors, selecting Module/Name/System advertisement.
const (
	VectorOTPModuleAdvertisement AdvertisementVector = 0x0001
	VectorOTPNameAdvertisement  AdvertisementVector = 0x0002
	VectorOTPSystemAdvertisement AdvertisementVector = 0x0003
)

// ModuleInnerVector is the Vector field inside each inner advertisement layer.
type ModuleInnerVector uint16

// VectorOTPModuleAdvertisementList is the only defined inner vector for each
// of the three advertisement payload kinds; each payload uses its own layer
// type so the value is reused but never confused across them.
const VectorOTPModuleAdvertisementList ModuleInnerVector = 0x0001

// ManufacturerID identifies the module namespace. 0x0000 is ESTA (standard modules).
type ManufacturerID uint16

// ESTAManufacturerID is the standard-module manufacturer ID.
const ESTAManufacturerID ManufacturerID = 0x0000

// ModuleNumber identifies a module within a manufacturer's namespace.
type ModuleNumber uint16

// Standard (ESTA) module numbers.
const (
	ModulePosition        ModuleNumber = 0x0001
	ModulePositionVelAcc  ModuleNumber = 0x0002
	ModuleRotation        ModuleNumber = 0x0003
	ModuleRotationVelAcc  ModuleNumber = 0x0004
	ModuleScale           ModuleNumber = 0x0005
	ModuleReferenceFrame  ModuleNumber = 0x0006
)

// ModuleIdent is the (ManufacturerID, ModuleNumber) pair identifying a module.
type ModuleIdent struct {
	ManufacturerID ManufacturerID
	ModuleNumber   ModuleNumber
}

var moduleIdentToString = map[ModuleIdent]string{
	{ESTAManufacturerID, ModulePosition}:       "POSITION",
	{ESTAManufacturerID, ModulePositionVelAcc}: "POSITION_VELOCITY_ACCELERATION",
	{ESTAManufacturerID, ModuleRotation}:       "ROTATION",
	{ESTAManufacturerID, ModuleRotationVelAcc}: "ROTATION_VELOCITY_ACCELERATION",
	{ESTAManufacturerID, ModuleScale}:          "SCALE",
	{ESTAManufacturerID, ModuleReferenceFrame}: "REFERENCE_FRAME",
}

func (m ModuleIdent) String() string {
	if s, ok := moduleIdentToString[m]; ok {
		return s
	}
	return "UNKNOWN"
}
